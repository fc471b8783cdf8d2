package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"serotonyl.ru/gift-ledger/internal/common"
)

// Claims — полезная нагрузка токена доступа.
type Claims struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
	jwt.RegisteredClaims
}

// Tokens выпускает и проверяет HS256-токены доступа.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens создаёт выпускатель токенов.
func NewTokens(secret, issuer string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue подписывает токен для actor. Возвращает токен и момент истечения.
func (t *Tokens) Issue(a Actor) (string, time.Time, error) {
	if !a.Authenticated() {
		return "", time.Time{}, common.ErrUnauthorized
	}
	now := t.now()
	expiresAt := now.Add(t.ttl)
	claims := Claims{
		UserID: a.UserID,
		Role:   a.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(a.UserID, 10),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse проверяет подпись, издателя и срок действия токена.
// Любая проблема с токеном — ErrUnauthorized.
func (t *Tokens) Parse(token string) (Actor, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return Actor{}, errors.Join(common.ErrUnauthorized, err)
	}
	if claims.UserID <= 0 {
		return Actor{}, common.ErrUnauthorized
	}
	role := claims.Role
	if role != RoleAdmin {
		role = RoleUser
	}
	return Actor{UserID: claims.UserID, Role: role}, nil
}

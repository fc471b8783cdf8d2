// Package memory — хранилище в памяти процесса для STORAGE_DRIVER=memory и тестов.
// Реализует Store каждого модуля под одним мьютексом: любая операция
// сначала проверяет все условия и только потом меняет данные, поэтому
// частичных изменений не бывает и откат не нужен.
package memory

import (
	"strings"
	"sync"
	"time"

	"serotonyl.ru/gift-ledger/internal/features/admin"
	"serotonyl.ru/gift-ledger/internal/features/gifts"
	"serotonyl.ru/gift-ledger/internal/features/members"
	"serotonyl.ru/gift-ledger/internal/features/payments"
	"serotonyl.ru/gift-ledger/internal/features/verification"
	"serotonyl.ru/gift-ledger/internal/features/wallet"
)

type Store struct {
	mu  sync.Mutex
	now func() time.Time
	seq int64

	users     map[int64]*members.User
	usernames map[string]int64
	rooms     map[int64]*members.Room

	wallets map[int64]*wallet.Wallet
	entries []*wallet.Entry

	gifts     map[int64]*gifts.Gift
	transfers []*gifts.Transfer

	gateways map[int64]*payments.Gateway
	plans    map[int64]*payments.Plan
	txs      map[int64]*payments.Transaction
	txOrder  []int64
	txByExt  map[string]int64

	requests     map[int64]*verification.Request
	reqOrder     []int64
	reqByPayment map[int64]int64

	attempts []admin.LoginAttempt
}

func New() *Store {
	return &Store{
		now:          func() time.Time { return time.Now().UTC() },
		users:        make(map[int64]*members.User),
		usernames:    make(map[string]int64),
		rooms:        make(map[int64]*members.Room),
		wallets:      make(map[int64]*wallet.Wallet),
		gifts:        make(map[int64]*gifts.Gift),
		gateways:     make(map[int64]*payments.Gateway),
		plans:        make(map[int64]*payments.Plan),
		txs:          make(map[int64]*payments.Transaction),
		txByExt:      make(map[string]int64),
		requests:     make(map[int64]*verification.Request),
		reqByPayment: make(map[int64]int64),
	}
}

// SetClock подменяет часы (тесты сроков значков и просрочки платежей).
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// Представления под интерфейсы модулей.
func (s *Store) Members() members.Store           { return membersView{s} }
func (s *Store) Wallets() wallet.Store            { return walletsView{s} }
func (s *Store) Gifts() gifts.Store               { return giftsView{s} }
func (s *Store) Payments() payments.Store         { return paymentsView{s} }
func (s *Store) Verification() verification.Store { return verificationView{s} }
func (s *Store) Admin() admin.Store               { return adminView{s} }

// --- Начальные данные ---

// SeedUser регистрирует пользователя (или возвращает существующего).
func (s *Store) SeedUser(username string) *members.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.ensureUserLocked(username)
	cp := *u
	return &cp
}

func (s *Store) ensureUserLocked(username string) *members.User {
	username = members.NormalizeUsername(username)
	if id, ok := s.usernames[strings.ToLower(username)]; ok {
		return s.users[id]
	}
	u := &members.User{ID: s.nextID(), Username: username, CreatedAt: s.now()}
	s.users[u.ID] = u
	s.usernames[strings.ToLower(username)] = u.ID
	return u
}

// SeedRoom создаёт комнату владельца ownerID.
func (s *Store) SeedRoom(ownerID int64, name string) *members.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := &members.Room{ID: s.nextID(), OwnerID: ownerID, Name: name, CreatedAt: s.now()}
	s.rooms[room.ID] = room
	cp := *room
	return &cp
}

func (s *Store) SeedGift(name string, price int64, active bool) *gifts.Gift {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := &gifts.Gift{ID: s.nextID(), Name: name, Price: price, IsActive: active, CreatedAt: s.now()}
	s.gifts[g.ID] = g
	cp := *g
	return &cp
}

func (s *Store) SeedGateway(code string, typ payments.GatewayType) *payments.Gateway {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := &payments.Gateway{ID: s.nextID(), Code: code, Name: code, Type: typ, IsActive: true}
	s.gateways[g.ID] = g
	cp := *g
	return &cp
}

// SeedPlan сохраняет тариф; ID назначается хранилищем.
func (s *Store) SeedPlan(p payments.Plan) *payments.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextID()
	if p.TargetType == "" {
		p.TargetType = members.TargetUser
	}
	s.plans[p.ID] = &p
	cp := p
	return &cp
}

// SeedDefaults заполняет тот же стартовый каталог, что и миграция Postgres.
func (s *Store) SeedDefaults() {
	for _, g := range []struct {
		name  string
		price int64
	}{{"Rose", 10}, {"Heart", 50}, {"Crown", 100}, {"Rocket", 500}} {
		s.SeedGift(g.name, g.price, true)
	}
	s.SeedGateway("bank_transfer", payments.GatewayManual)
	s.SeedGateway("card", payments.GatewayAutomated)
	for _, p := range []payments.Plan{
		{Name: "User badge, monthly", Kind: payments.PlanVerification, Tier: payments.TierMonthly, TargetType: members.TargetUser, Price: 500},
		{Name: "User badge, yearly", Kind: payments.PlanVerification, Tier: payments.TierYearly, TargetType: members.TargetUser, Price: 5000},
		{Name: "Room badge, monthly", Kind: payments.PlanVerification, Tier: payments.TierMonthly, TargetType: members.TargetRoom, Price: 1000},
		{Name: "Room badge, lifetime", Kind: payments.PlanVerification, Tier: payments.TierLifetime, TargetType: members.TargetRoom, Price: 20000},
		{Name: "Diamond pack 1000", Kind: payments.PlanDiamonds, Tier: payments.TierMonthly, TargetType: members.TargetUser, Price: 999, DiamondsAmount: 1000},
	} {
		p.Currency = "USD"
		p.IsActive = true
		s.SeedPlan(p)
	}
}

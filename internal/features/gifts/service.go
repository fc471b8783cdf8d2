// Package gifts — service.go содержит порядок проверок при отправке подарка.
package gifts

import (
	"context"
	"errors"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gift-ledger/internal/auth"
	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/features/members"
)

// Directory — разрешение получателя и комнаты (members.Service).
type Directory interface {
	Resolve(ctx context.Context, username string) (*members.User, error)
	Room(ctx context.Context, id int64) (*members.Room, error)
}

// Service отправляет подарки.
type Service struct {
	store Store
	dir   Directory
	calc  *Calculator
}

func NewService(store Store, dir Directory, calc *Calculator) *Service {
	return &Service{store: store, dir: dir, calc: calc}
}

// SendGift отправляет подарок напрямую пользователю.
//
// Порядок проверок:
//  1. Валидация ввода (до хранилища)
//  2. Получатель существует
//  3. Получатель != отправитель
//  4. Подарок существует и активен
//  5. Списание + запись одной транзакцией
func (s *Service) SendGift(ctx context.Context, actor auth.Actor, recipientUsername string, in SendInput) (*SendResult, error) {
	if err := auth.RequireUser(actor); err != nil {
		return nil, err
	}
	if err := s.validate(in); err != nil {
		return nil, err
	}
	return s.send(ctx, actor.UserID, recipientUsername, in, UserGift{})
}

// SendRoomGift отправляет подарок пользователю внутри комнаты.
func (s *Service) SendRoomGift(ctx context.Context, actor auth.Actor, roomID int64, recipientUsername string, in SendInput) (*SendResult, error) {
	if err := auth.RequireUser(actor); err != nil {
		return nil, err
	}
	if roomID <= 0 {
		return nil, common.Invalid("roomId", "must be a positive integer")
	}
	if err := s.validate(in); err != nil {
		return nil, err
	}
	if _, err := s.dir.Room(ctx, roomID); err != nil {
		return nil, err
	}
	return s.send(ctx, actor.UserID, recipientUsername, in, RoomGift{RoomID: roomID})
}

func (s *Service) validate(in SendInput) error {
	var errs common.ValidationErrors
	if in.GiftID <= 0 {
		errs = append(errs, common.Invalid("giftId", "must be a positive integer"))
	}
	if err := s.calc.ValidateQuantity(in.Quantity); err != nil {
		var fe *common.ValidationError
		if errors.As(err, &fe) {
			errs = append(errs, fe)
		}
	}
	if utf8.RuneCountInString(in.Message) > MaxMessageLength {
		errs = append(errs, common.Invalid("message", "must be at most 500 characters"))
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (s *Service) send(ctx context.Context, senderID int64, recipientUsername string, in SendInput, dest Destination) (*SendResult, error) {
	recipient, err := s.dir.Resolve(ctx, recipientUsername)
	if err != nil {
		return nil, err
	}
	if recipient.ID == senderID {
		return nil, common.ErrSelfGiftForbidden
	}

	gift, err := s.store.Gift(ctx, in.GiftID)
	if err != nil {
		return nil, err
	}
	if !gift.IsActive {
		return nil, common.ErrGiftInactive
	}

	quote, err := s.calc.Quote(gift.Price, in.Quantity)
	if err != nil {
		return nil, err
	}

	transfer, err := s.store.CreateTransfer(ctx, &Transfer{
		SenderID:    senderID,
		RecipientID: recipient.ID,
		GiftID:      gift.ID,
		Quantity:    in.Quantity,
		TotalValue:  quote.TotalValue,
		Commission:  quote.Commission,
		ActualCost:  quote.ActualCost,
		Message:     in.Message,
		Destination: dest,
	})
	if err != nil {
		var funds *common.InsufficientFundsError
		if errors.As(err, &funds) {
			funds.Required = quote.ActualCost
			funds.Commission = quote.Commission
		}
		return nil, err
	}

	log.WithFields(log.Fields{
		"transfer_id":  transfer.ID,
		"sender_id":    senderID,
		"recipient_id": recipient.ID,
		"gift_id":      gift.ID,
		"quantity":     in.Quantity,
		"actual_cost":  quote.ActualCost,
		"commission":   quote.Commission,
	}).Info("Подарок отправлен")

	return &SendResult{
		Transfer:   transfer,
		Gift:       gift,
		Recipient:  recipient.Summary(),
		ActualCost: quote.ActualCost,
		Commission: quote.Commission,
	}, nil
}

// Catalog — активные подарки.
func (s *Service) Catalog(ctx context.Context, actor auth.Actor) ([]*Gift, error) {
	if err := auth.RequireUser(actor); err != nil {
		return nil, err
	}
	list, err := s.store.ActiveGifts(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*Gift{}
	}
	return list, nil
}

// History — отправленные или полученные подарки вызывающего.
func (s *Service) History(ctx context.Context, actor auth.Actor, dir Direction, limit int) ([]*Transfer, error) {
	if err := auth.RequireUser(actor); err != nil {
		return nil, err
	}
	switch dir {
	case "":
		dir = Sent
	case Sent, Received:
	default:
		return nil, common.Invalid("direction", "must be one of [sent received]")
	}
	list, err := s.store.Transfers(ctx, actor.UserID, dir, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*Transfer{}
	}
	return list, nil
}

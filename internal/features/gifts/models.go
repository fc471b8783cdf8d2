// Package gifts отправляет подарки между пользователями с комиссией платформы.
// models.go описывает каталог подарков, запись о подарке и её назначение.
package gifts

import (
	"encoding/json"
	"time"

	"serotonyl.ru/gift-ledger/internal/features/members"
)

// MaxMessageLength — предел длины сообщения к подарку (в рунах).
const MaxMessageLength = 500

// Gift — позиция каталога. Цена в минимальных единицах (алмазах).
type Gift struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	IsActive  bool      `db:"is_active" json:"isActive"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Destination — куда отправлен подарок: лично пользователю или в комнату.
// Замкнутый набор: UserGift и RoomGift.
type Destination interface {
	destination()
}

// UserGift — подарок напрямую пользователю.
type UserGift struct{}

// RoomGift — подарок пользователю внутри комнаты.
type RoomGift struct {
	RoomID int64
}

func (UserGift) destination() {}
func (RoomGift) destination() {}

// roomIDOf — представление назначения в колонке gift_transfers.room_id.
func roomIDOf(d Destination) *int64 {
	if r, ok := d.(RoomGift); ok {
		id := r.RoomID
		return &id
	}
	return nil
}

func destinationOf(roomID *int64) Destination {
	if roomID == nil {
		return UserGift{}
	}
	return RoomGift{RoomID: *roomID}
}

// Transfer — неизменяемая запись об одной отправке подарка.
type Transfer struct {
	ID          int64
	SenderID    int64
	RecipientID int64
	GiftID      int64
	Quantity    int
	TotalValue  int64 // price × quantity
	Commission  int64 // удержание платформы
	ActualCost  int64 // TotalValue + Commission, списано с отправителя
	Message     string
	Destination Destination
	CreatedAt   time.Time
}

type destinationJSON struct {
	Kind   string `json:"kind"`
	RoomID int64  `json:"roomId,omitempty"`
}

func (t *Transfer) MarshalJSON() ([]byte, error) {
	dest := destinationJSON{Kind: "user"}
	if r, ok := t.Destination.(RoomGift); ok {
		dest = destinationJSON{Kind: "room", RoomID: r.RoomID}
	}
	return json.Marshal(struct {
		ID          int64           `json:"id"`
		SenderID    int64           `json:"senderId"`
		RecipientID int64           `json:"recipientId"`
		GiftID      int64           `json:"giftId"`
		Quantity    int             `json:"quantity"`
		TotalValue  int64           `json:"totalValue"`
		Commission  int64           `json:"commission"`
		ActualCost  int64           `json:"actualCost"`
		Message     string          `json:"message,omitempty"`
		Destination destinationJSON `json:"destination"`
		CreatedAt   time.Time       `json:"createdAt"`
	}{t.ID, t.SenderID, t.RecipientID, t.GiftID, t.Quantity, t.TotalValue,
		t.Commission, t.ActualCost, t.Message, dest, t.CreatedAt})
}

// SendInput — то, что присылает клиент.
type SendInput struct {
	GiftID   int64
	Quantity int
	Message  string
}

// SendResult — итог успешной отправки.
type SendResult struct {
	Transfer   *Transfer       `json:"transfer"`
	Gift       *Gift           `json:"gift"`
	Recipient  members.Summary `json:"recipient"`
	ActualCost int64           `json:"actualCost"`
	Commission int64           `json:"commission"`
}

// Direction — фильтр истории подарков.
type Direction string

const (
	Sent     Direction = "sent"
	Received Direction = "received"
)

// Package notify отправляет администраторам уведомления о платежах в Telegram.
// Подключается к payments.Service как наблюдатель.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/features/payments"
)

// Sender — то, что нужно от *tgbotapi.BotAPI.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram пишет в админские чаты:
//   - о новых платежах через ручной шлюз (их нужно подтвердить);
//   - о завершённых платежах.
type Telegram struct {
	bot   Sender
	chats []int64
	loc   *time.Location
}

var _ payments.Observer = (*Telegram)(nil)

func NewTelegram(bot Sender, chats []int64, loc *time.Location) *Telegram {
	return &Telegram{bot: bot, chats: chats, loc: loc}
}

// NewBot создаёт клиента Bot API по токену.
func NewBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	api.Debug = debug
	log.Infof("Уведомления Telegram от имени @%s", api.Self.UserName)
	return api, nil
}

func (n *Telegram) PaymentInitiated(_ context.Context, t *payments.Transaction, plan *payments.Plan, gw *payments.Gateway) error {
	if gw == nil || gw.Type != payments.GatewayManual {
		return nil
	}
	return n.broadcast(FormatManualPending(t, plan, gw, n.loc))
}

func (n *Telegram) PaymentCompleted(_ context.Context, t *payments.Transaction, plan *payments.Plan, completedBy string) error {
	return n.broadcast(FormatCompleted(t, plan, completedBy))
}

// broadcast отправляет во все чаты. Ошибки отдельных чатов собираются в одну.
func (n *Telegram) broadcast(text string) error {
	var failed []string
	for _, chatID := range n.chats {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if _, err := n.bot.Send(msg); err != nil {
			log.WithError(err).WithField("chat_id", chatID).Warn("Не удалось отправить уведомление")
			failed = append(failed, fmt.Sprint(chatID))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("уведомление не доставлено в чаты: %s", strings.Join(failed, ", "))
	}
	return nil
}

// FormatManualPending — текст о платеже, ждущем ручного подтверждения.
func FormatManualPending(t *payments.Transaction, plan *payments.Plan, gw *payments.Gateway, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("🧾 <b>Новый платёж ждёт подтверждения</b>\n\n")
	fmt.Fprintf(&b, "Транзакция: <code>%s</code>\n", t.TransactionID)
	fmt.Fprintf(&b, "Пользователь: %d\n", t.UserID)
	fmt.Fprintf(&b, "Тариф: %s\n", describePlan(plan))
	fmt.Fprintf(&b, "Сумма: %s %s\n", common.FormatNumber(t.Amount), t.Currency)
	fmt.Fprintf(&b, "Шлюз: %s\n", gw.Name)
	fmt.Fprintf(&b, "Создан: %s\n", common.FormatDateTime(t.CreatedAt, loc))
	fmt.Fprintf(&b, "\nPATCH /api/v1/payment-transactions/%d/verify", t.ID)
	return b.String()
}

// FormatCompleted — текст о завершённом платеже.
func FormatCompleted(t *payments.Transaction, plan *payments.Plan, completedBy string) string {
	return fmt.Sprintf("✅ Платёж <code>%s</code> завершён (%s)\nТариф: %s\nСумма: %s %s",
		t.TransactionID, completedBy, describePlan(plan), common.FormatNumber(t.Amount), t.Currency)
}

func describePlan(plan *payments.Plan) string {
	if plan == nil {
		return "?"
	}
	switch plan.Kind {
	case payments.PlanDiamonds:
		return fmt.Sprintf("%s (%s %s)", plan.Name,
			common.FormatNumber(plan.DiamondsAmount), common.PluralizeDiamonds(plan.DiamondsAmount))
	case payments.PlanVerification:
		if plan.DurationDays != nil {
			d := int64(*plan.DurationDays)
			return fmt.Sprintf("%s (%d %s)", plan.Name, d, common.PluralizeDays(d))
		}
		return fmt.Sprintf("%s (%s)", plan.Name, plan.Tier)
	}
	return plan.Name
}

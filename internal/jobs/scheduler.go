// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: истечение зависших платежей,
// снятие просроченных значков и сверку верификаций с оплатами.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Задачи планировщика. Каждая возвращает число обработанных записей.
type (
	PaymentExpirer interface {
		ExpireStale(ctx context.Context) (int, error)
	}
	BadgeMaintainer interface {
		ExpireBadges(ctx context.Context) (int, error)
		Reconcile(ctx context.Context) (int, error)
	}
)

// Schedule — cron-выражения задач.
type Schedule struct {
	ExpirePayments string
	ExpireBadges   string
	Reconcile      string
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron         *cron.Cron
	payments     PaymentExpirer
	verification BadgeMaintainer
	schedule     Schedule
}

// NewScheduler создаёт планировщик задач в часовом поясе loc.
func NewScheduler(payments PaymentExpirer, verification BadgeMaintainer, schedule Schedule, loc *time.Location) *Scheduler {
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &Scheduler{
		cron:         c,
		payments:     payments,
		verification: verification,
		schedule:     schedule,
	}
}

// Start регистрирует задачи и запускает cron.
// Ошибка — только при неверном cron-выражении.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) (int, error)
	}{
		{"expire_payments", s.schedule.ExpirePayments, s.payments.ExpireStale},
		{"expire_badges", s.schedule.ExpireBadges, s.verification.ExpireBadges},
		{"reconcile_verification", s.schedule.Reconcile, s.verification.Reconcile},
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, s.wrap(ctx, j.name, j.run)); err != nil {
			return fmt.Errorf("задача %s: неверное расписание %q: %w", j.name, j.spec, err)
		}
	}

	s.cron.Start()
	log.Info("Планировщик задач запущен")
	return nil
}

func (s *Scheduler) wrap(ctx context.Context, name string, run func(context.Context) (int, error)) func() {
	return func() {
		n, err := run(ctx)
		if err != nil {
			log.WithError(err).WithField("job", name).Error("[CRON] Ошибка задачи")
			return
		}
		if n > 0 {
			log.WithFields(log.Fields{"job": name, "processed": n}).Info("[CRON] Задача выполнена")
		} else {
			log.WithField("job", name).Debug("[CRON] Нечего обрабатывать")
		}
	}
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

package memory

import (
	"context"
	"time"

	"serotonyl.ru/gift-ledger/internal/features/admin"
)

type adminView struct{ s *Store }

func (v adminView) LogAttempt(_ context.Context, userID int64, success bool) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.attempts = append(v.s.attempts, admin.LoginAttempt{
		ID: v.s.nextID(), UserID: userID, Success: success, AttemptedAt: v.s.now(),
	})
	return nil
}

func (v adminView) RecentFailures(_ context.Context, userID int64, since time.Time) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	n := 0
	for _, a := range v.s.attempts {
		if a.UserID == userID && !a.Success && !a.AttemptedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// Package locktest provides an in-memory lock repository for tests.
package locktest

import (
	"context"
	"sync"
	"time"

	"github.com/stanstork/reconciler/internal/models"
	"github.com/stanstork/reconciler/internal/repository"
)

type Repository struct {
	mu    sync.Mutex
	locks []models.Lock
}

func NewRepository() *Repository {
	return &Repository{}
}

var _ repository.LockRepository = (*Repository)(nil)

// All returns a copy of every stored lock, expired ones included.
func (r *Repository) All() []models.Lock {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Lock(nil), r.locks...)
}

func (r *Repository) deleteWhere(match func(models.Lock) bool) int64 {
	kept := r.locks[:0]
	var n int64
	for _, l := range r.locks {
		if match(l) {
			n++
			continue
		}
		kept = append(kept, l)
	}
	r.locks = kept
	return n
}

func (r *Repository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteWhere(func(l models.Lock) bool { return !l.ActiveAt(now) }), nil
}

func (r *Repository) DeleteExpiredFor(_ context.Context, key string, lockType models.LockType, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteWhere(func(l models.Lock) bool {
		return l.Key == key && l.Type == lockType && !l.ActiveAt(now)
	}), nil
}

func (r *Repository) FindActive(_ context.Context, key string, lockType models.LockType, now time.Time) (models.Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.locks {
		if l.Key == key && l.Type == lockType && l.ActiveAt(now) {
			return l, nil
		}
	}
	return models.Lock{}, repository.ErrNotFound
}

func (r *Repository) InsertIfNoneActive(_ context.Context, lock models.Lock, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.locks {
		if l.Key == lock.Key && l.Type == lock.Type && l.ActiveAt(now) {
			return false, nil
		}
	}
	r.locks = append(r.locks, lock)
	return true, nil
}

func (r *Repository) Delete(_ context.Context, key string, lockType models.LockType) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteWhere(func(l models.Lock) bool { return l.Key == key && l.Type == lockType }) > 0, nil
}

func (r *Repository) Extend(_ context.Context, key string, lockType models.LockType, extra time.Duration, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	for i, l := range r.locks {
		if l.Key == key && l.Type == lockType && l.ActiveAt(now) {
			r.locks[i].ExpiresAt = l.ExpiresAt.Add(extra)
			changed = true
		}
	}
	return changed, nil
}

func (r *Repository) DeleteActiveByUser(_ context.Context, userID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteWhere(func(l models.Lock) bool { return l.UserID == userID && l.ActiveAt(now) }), nil
}

func (r *Repository) DeleteActiveByJob(_ context.Context, jobID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteWhere(func(l models.Lock) bool {
		return l.JobID != nil && *l.JobID == jobID && l.ActiveAt(now)
	}), nil
}

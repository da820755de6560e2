package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hive-services/backend/internal/apperrors"
	"github.com/hive-services/backend/internal/db"
	"github.com/hive-services/backend/internal/models"
)

// interleavedRepo runs hook once, between the next read and the caller's write.
type interleavedRepo struct {
	db.Repository
	mu   sync.Mutex
	hook func()
}

func (r *interleavedRepo) GetRequest(ctx context.Context, id string) (models.ServiceRequest, error) {
	cur, err := r.Repository.GetRequest(ctx, id)
	r.mu.Lock()
	hook := r.hook
	r.hook = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return cur, err
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestDateEditBetweenReadAndApproveIsNotLost(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t)
	ctx := context.Background()

	var hookErr error
	repo := &interleavedRepo{Repository: f.repo, hook: func() {
		_, hookErr = f.requests.AddAvailableDate(ctx, clientActor, id, "2025-10-25", models.StatusPending)
	}}
	engine := *f.engine
	engine.Repo = repo

	_, err := engine.Approve(ctx, managerNorte, id, Command{Team: "Equipe Alpha", ScheduledDate: "2025-10-20"})
	if hookErr != nil {
		t.Fatalf("date add: %v", hookErr)
	}
	if !errors.Is(err, apperrors.ErrConcurrentModification) {
		t.Fatalf("expected ConcurrentModification for approve on a stale read, got %v", err)
	}

	stored, _ := f.repo.GetRequest(ctx, id)
	if stored.Status != models.StatusPending || !contains(stored.AvailableDates, "2025-10-25") {
		t.Fatalf("acknowledged date add lost: status=%s dates=%v", stored.Status, stored.AvailableDates)
	}

	f.approveAlpha(t, id)
	stored, _ = f.repo.GetRequest(ctx, id)
	if stored.Status != models.StatusApproved || !contains(stored.AvailableDates, "2025-10-25") {
		t.Fatalf("retry should keep the date: status=%s dates=%v", stored.Status, stored.AvailableDates)
	}
}

func TestInterleavedDateAddsKeepBoth(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t)
	ctx := context.Background()

	var hookErr error
	repo := &interleavedRepo{Repository: f.repo, hook: func() {
		_, hookErr = f.requests.AddAvailableDate(ctx, clientActor, id, "2025-10-30", models.StatusPending)
	}}
	requests := *f.requests
	requests.Repo = repo

	_, err := requests.AddAvailableDate(ctx, clientActor, id, "2025-10-31", models.StatusPending)
	if hookErr != nil {
		t.Fatalf("first add: %v", hookErr)
	}
	if !errors.Is(err, apperrors.ErrConcurrentModification) {
		t.Fatalf("expected ConcurrentModification for the stale add, got %v", err)
	}

	v, err := f.requests.AddAvailableDate(ctx, clientActor, id, "2025-10-31", models.StatusPending)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !contains(v.AvailableDates, "2025-10-30") || !contains(v.AvailableDates, "2025-10-31") {
		t.Fatalf("expected both dates, got %v", v.AvailableDates)
	}
	stored, _ := f.repo.GetRequest(ctx, id)
	if stored.Version != v.Version {
		t.Fatalf("returned version %d does not match stored %d", v.Version, stored.Version)
	}
}

func TestMarkAlertedInvalidatesEarlierReads(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t)
	ctx := context.Background()

	var hookErr error
	repo := &interleavedRepo{Repository: f.repo, hook: func() {
		hookErr = f.engine.MarkAlerted(ctx, id, models.StatusPending, models.TierCritical)
	}}
	requests := *f.requests
	requests.Repo = repo

	_, err := requests.AddAvailableDate(ctx, clientActor, id, "2025-10-31", models.StatusPending)
	if hookErr != nil {
		t.Fatalf("mark alerted: %v", hookErr)
	}
	if !errors.Is(err, apperrors.ErrConcurrentModification) {
		t.Fatalf("expected ConcurrentModification, got %v", err)
	}
	stored, _ := f.repo.GetRequest(ctx, id)
	if stored.AlertedTier != models.TierCritical {
		t.Fatalf("alerted tier overwritten: %s", stored.AlertedTier)
	}
}

package escalation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hive-services/backend/internal/db"
	"github.com/hive-services/backend/internal/escalation"
	"github.com/hive-services/backend/internal/models"
	"github.com/hive-services/backend/internal/notify"
	"github.com/hive-services/backend/internal/service"
)

type recorder struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recorder) Enqueue(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recorder) count(role models.Role) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.RecipientRole == role {
			n++
		}
	}
	return n
}

func newEngine(t *testing.T, repo db.Repository, rec *recorder, now time.Time) *service.Engine {
	t.Helper()
	policy, err := service.NewPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	return &service.Engine{
		Repo:     repo,
		Policy:   policy,
		Resolver: &service.AssignmentResolver{Repo: repo},
		Notifier: rec,
		Logger:   zerolog.Nop(),
		Clock:    func() time.Time { return now },
	}
}

func seed(t *testing.T, repo db.Repository, id string, status models.Status, submitted time.Time) {
	t.Helper()
	r := models.ServiceRequest{
		ID:          id,
		ClientID:    "c-" + id,
		ClientName:  "Cliente " + id,
		ClientArea:  models.AreaNorte,
		ServiceType: "limpeza",
		Status:      status,
		SubmittedAt: submitted,
		AlertedTier: models.TierNormal,
	}
	if err := repo.CreateRequest(context.Background(), r, models.RequestEvent{ID: "ev-" + id, RequestID: id, To: status, At: submitted}); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestSweepEscalatesOncePerThreshold(t *testing.T) {
	ctx := context.Background()
	repo := db.NewMemoryStore()
	base := time.Date(2025, 10, 20, 9, 0, 0, 0, time.UTC)
	seed(t, repo, "R1", models.StatusPending, base)
	seed(t, repo, "R2", models.StatusPending, base.Add(80*time.Minute))

	rec := &recorder{}
	now := base.Add(95 * time.Minute)
	sw := escalation.NewSweeper(escalation.SweepConfig{}, repo, newEngine(t, repo, rec, now), rec, zerolog.Nop(), nil)

	res, err := sw.RunOnce(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Scanned != 2 || res.Escalated != 1 || res.CriticalAlerts != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	r1, _ := repo.GetRequest(ctx, "R1")
	if r1.Status != models.StatusUrgent || r1.UrgentReason == "" {
		t.Fatalf("expected R1 urgent with reason, got %s %q", r1.Status, r1.UrgentReason)
	}
	r2, _ := repo.GetRequest(ctx, "R2")
	if r2.Status != models.StatusPending {
		t.Fatalf("expected R2 untouched, got %s", r2.Status)
	}
	admins := rec.count(models.RoleAdmin)
	if admins != 1 {
		t.Fatalf("expected one admin notification, got %d", admins)
	}

	// Same instant again: nothing new.
	res, err = sw.RunOnce(ctx, now)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if res.Escalated != 0 || res.CriticalAlerts != 0 || rec.count(models.RoleAdmin) != admins {
		t.Fatalf("expected idempotent sweep, got %+v", res)
	}
}

func TestSweepSendsSingleCriticalAlert(t *testing.T) {
	ctx := context.Background()
	repo := db.NewMemoryStore()
	base := time.Date(2025, 10, 20, 9, 0, 0, 0, time.UTC)
	seed(t, repo, "R1", models.StatusPending, base)

	rec := &recorder{}
	now := base.Add(3 * time.Hour)
	sw := escalation.NewSweeper(escalation.SweepConfig{}, repo, newEngine(t, repo, rec, now), rec, zerolog.Nop(), nil)

	res, err := sw.RunOnce(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Escalated != 1 || res.CriticalAlerts != 1 {
		t.Fatalf("expected escalation and critical alert, got %+v", res)
	}
	r1, _ := repo.GetRequest(ctx, "R1")
	if r1.AlertedTier != models.TierCritical {
		t.Fatalf("expected alerted tier critical, got %s", r1.AlertedTier)
	}

	before := rec.count(models.RoleAdmin)
	res, _ = sw.RunOnce(ctx, now.Add(time.Hour))
	if res.CriticalAlerts != 0 || rec.count(models.RoleAdmin) != before {
		t.Fatalf("critical alert repeated: %+v", res)
	}
}

func TestSweepIgnoresAnsweredRequests(t *testing.T) {
	ctx := context.Background()
	repo := db.NewMemoryStore()
	base := time.Date(2025, 10, 20, 9, 0, 0, 0, time.UTC)
	seed(t, repo, "R1", models.StatusApproved, base)

	rec := &recorder{}
	now := base.Add(5 * time.Hour)
	sw := escalation.NewSweeper(escalation.SweepConfig{}, repo, newEngine(t, repo, rec, now), rec, zerolog.Nop(), nil)
	res, err := sw.RunOnce(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Scanned != 0 || len(rec.sent) != 0 {
		t.Fatalf("expected approved request to be ignored, got %+v", res)
	}
}

func TestSweeperStartRejectsBadSpec(t *testing.T) {
	sw := escalation.NewSweeper(escalation.SweepConfig{Enabled: true, Spec: "not a spec"}, db.NewMemoryStore(), nil, nil, zerolog.Nop(), nil)
	if err := sw.StartWithContext(context.Background()); err == nil {
		t.Fatalf("expected error for invalid cron spec")
	}
}

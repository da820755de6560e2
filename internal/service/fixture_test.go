package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hive-services/backend/internal/db"
	"github.com/hive-services/backend/internal/models"
	"github.com/hive-services/backend/internal/notify"
)

var (
	adminActor   = models.Actor{Role: models.RoleAdmin, ID: "admin-1"}
	managerNorte = models.Actor{Role: models.RoleManager, ID: "m-norte", Areas: []models.Area{models.AreaNorte}}
	managerSul   = models.Actor{Role: models.RoleManager, ID: "m-sul", Areas: []models.Area{models.AreaSul}}
	clientActor  = models.Actor{Role: models.RoleClient, ID: "client-1"}
	otherClient  = models.Actor{Role: models.RoleClient, ID: "client-2"}
	alphaMember  = models.Actor{Role: models.RoleCollaborator, ID: "col-1"}
	betaMember   = models.Actor{Role: models.RoleCollaborator, ID: "col-3"}
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type recorder struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recorder) Enqueue(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recorder) to(role models.Role, id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.RecipientRole == role && s.RecipientID == id {
			n++
		}
	}
	return n
}

type fixture struct {
	repo     *db.MemoryStore
	clock    *fakeClock
	rec      *recorder
	engine   *Engine
	requests *RequestService
	invoices *InvoiceLedger
	photos   *PhotoTracker
}

var submittedAt = time.Date(2025, 10, 20, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := db.NewMemoryStore()
	seedRoster(t, repo)

	policy, err := NewPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	clock := &fakeClock{t: submittedAt}
	rec := &recorder{}
	validate := NewValidator()
	resolver := &AssignmentResolver{Repo: repo, Validator: validate}
	requests := &RequestService{
		Repo:      repo,
		Policy:    policy,
		Resolver:  resolver,
		Validator: validate,
		Notifier:  rec,
		Logger:    zerolog.Nop(),
		Location:  time.UTC,
		Clock:     clock.Now,
	}
	return &fixture{
		repo:  repo,
		clock: clock,
		rec:   rec,
		engine: &Engine{
			Repo:      repo,
			Policy:    policy,
			Resolver:  resolver,
			Validator: validate,
			Notifier:  rec,
			Logger:    zerolog.Nop(),
			Location:  time.UTC,
			Clock:     clock.Now,
		},
		requests: requests,
		invoices: &InvoiceLedger{Requests: requests, Notifier: rec, Logger: zerolog.Nop()},
		photos:   &PhotoTracker{Requests: requests, Logger: zerolog.Nop()},
	}
}

func seedRoster(t *testing.T, repo db.Repository) {
	t.Helper()
	managers := []models.Manager{
		{ID: "m-norte", Name: "Ana", Areas: []models.Area{models.AreaNorte}, Active: true},
		{ID: "m-sul", Name: "Bruno", Areas: []models.Area{models.AreaSul}, Active: true},
		{ID: "m-idle", Name: "Carla", Areas: []models.Area{models.AreaNorte}, Active: false},
	}
	teams := []models.Team{
		{ID: "t-alpha", Name: "Equipe Alpha", ManagerID: "m-norte", Area: models.AreaNorte, Members: []string{"col-1", "col-2"}, Active: true},
		{ID: "t-beta", Name: "Equipe Beta", ManagerID: "m-sul", Area: models.AreaSul, Members: []string{"col-3"}, Active: true},
	}
	if err := repo.UpsertRoster(context.Background(), managers, teams); err != nil {
		t.Fatalf("roster: %v", err)
	}
}

// submit creates a pending request in area norte owned by clientActor.
func (f *fixture) submit(t *testing.T) string {
	t.Helper()
	v, err := f.requests.Submit(context.Background(), clientActor, SubmitInput{
		ClientName:     "Maria Souza",
		ClientArea:     models.AreaNorte,
		ServiceType:    "Limpeza",
		Description:    "Limpeza pós-obra",
		AvailableDates: []string{"2025-10-20", "2025-10-21"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return v.ID
}

// seedStatus stores a request directly in status st, bypassing the engine.
func (f *fixture) seedStatus(t *testing.T, id string, st models.Status) {
	t.Helper()
	r := models.ServiceRequest{
		ID:          id,
		ClientID:    clientActor.ID,
		ClientName:  "Maria Souza",
		ClientArea:  models.AreaNorte,
		ServiceType: "Limpeza",
		Status:      st,
		SubmittedAt: submittedAt,
		AlertedTier: models.TierNormal,
	}
	if err := f.repo.CreateRequest(context.Background(), r, models.RequestEvent{ID: "ev-" + id, RequestID: id, To: st, At: submittedAt}); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func (f *fixture) approveAlpha(t *testing.T, id string) {
	t.Helper()
	_, err := f.engine.Approve(context.Background(), managerNorte, id, Command{Team: "Equipe Alpha", ScheduledDate: "2025-10-20"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func (f *fixture) complete(t *testing.T, id string) {
	t.Helper()
	f.approveAlpha(t, id)
	ctx := context.Background()
	if _, err := f.engine.Start(ctx, alphaMember, id, Command{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.engine.Complete(ctx, alphaMember, id, Command{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/hive-services/backend/internal/models"
)

type StoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func TestStoreSuite(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	suite.Run(t, &StoreSuite{})
}

func (s *StoreSuite) SetupSuite() {
	s.ctx = context.Background()
	store, err := New(s.ctx, os.Getenv("TEST_DATABASE_URL"))
	s.Require().NoError(err)
	s.Require().NoError(store.Migrate(s.ctx))
	s.store = store
}

func (s *StoreSuite) TearDownSuite() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *StoreSuite) SetupTest() {
	_, err := s.store.Pool.Exec(s.ctx, `TRUNCATE request_events, invoices, photo_documentation, teams, managers, service_requests`)
	s.Require().NoError(err)
}

func (s *StoreSuite) newRequest() models.ServiceRequest {
	now := time.Now().UTC().Truncate(time.Second)
	return models.ServiceRequest{
		ID:             "REQ-" + uuid.NewString()[:8],
		ClientID:       "client-1",
		ClientName:     "Shopping Center Norte",
		ClientArea:     models.AreaNorte,
		ServiceType:    "Limpeza Profunda",
		Description:    "Limpeza completa",
		SubmittedAt:    now,
		Status:         models.StatusPending,
		AvailableDates: []string{"2025-10-20", "2025-10-21"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *StoreSuite) create(r models.ServiceRequest) {
	err := s.store.CreateRequest(s.ctx, r, models.RequestEvent{
		ID: uuid.NewString(), RequestID: r.ID, To: models.StatusPending,
		ActorRole: models.RoleClient, ActorID: r.ClientID, At: r.SubmittedAt,
	})
	s.Require().NoError(err)
}

func (s *StoreSuite) TestCreateAndGet() {
	r := s.newRequest()
	s.create(r)

	got, err := s.store.GetRequest(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(r.ClientName, got.ClientName)
	s.Equal(models.StatusPending, got.Status)
	s.Equal([]string{"2025-10-20", "2025-10-21"}, got.AvailableDates)
	s.Nil(got.Invoice)
	s.Nil(got.PhotoDocumentation)

	_, err = s.store.GetRequest(s.ctx, "missing")
	s.ErrorIs(err, ErrNotFound)

	s.ErrorIs(s.store.CreateRequest(s.ctx, r, models.RequestEvent{ID: uuid.NewString(), RequestID: r.ID}), ErrExists)
}

func (s *StoreSuite) TestSwapRequestCompareAndSet() {
	r := s.newRequest()
	s.create(r)

	next := r.Clone()
	next.Status = models.StatusApproved
	next.AssignedTeam = "Equipe Alpha"
	ev := models.RequestEvent{ID: uuid.NewString(), RequestID: r.ID, From: models.StatusPending, To: models.StatusApproved, ActorRole: models.RoleManager, ActorID: "m1", At: time.Now().UTC()}
	s.Require().NoError(s.store.SwapRequest(s.ctx, next, models.StatusPending, &ev))

	stale := r.Clone()
	stale.Status = models.StatusDelegated
	s.ErrorIs(s.store.SwapRequest(s.ctx, stale, models.StatusPending, nil), ErrConflict)

	current, err := s.store.GetRequest(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), current.Version)
	edited := current.Clone()
	edited.AvailableDates = []string{"2025-10-25"}
	s.Require().NoError(s.store.SwapRequest(s.ctx, edited, models.StatusApproved, nil))
	s.ErrorIs(s.store.SwapRequest(s.ctx, current, models.StatusApproved, nil), ErrConflict)

	events, err := s.store.ListEvents(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Len(events, 2)
	s.Equal(models.StatusApproved, events[1].To)
}

func (s *StoreSuite) TestInvoiceAndPhotos() {
	r := s.newRequest()
	s.create(r)

	inv, err := s.store.MutateInvoice(s.ctx, r.ID, func(cur *models.Invoice) (*models.Invoice, error) {
		s.Nil(cur)
		return &models.Invoice{Number: "NF-001", Amount: 1200.50, IssueDate: "2025-10-21"}, nil
	})
	s.Require().NoError(err)
	s.Equal("NF-001", inv.Number)

	_, err = s.store.MutatePhotos(s.ctx, r.ID, func(cur *models.PhotoDocumentation) (*models.PhotoDocumentation, error) {
		return &models.PhotoDocumentation{BeforePhotos: []string{"https://img/1.jpg"}, AfterPhotos: []string{}, UploadDate: "21/10/2025 - 10:00", UploadedBy: "col-1"}, nil
	})
	s.Require().NoError(err)

	got, err := s.store.GetRequest(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.Invoice)
	s.InDelta(1200.50, got.Invoice.Amount, 0.001)
	s.Require().NotNil(got.PhotoDocumentation)
	s.Equal([]string{"https://img/1.jpg"}, got.PhotoDocumentation.BeforePhotos)

	_, err = s.store.MutateInvoice(s.ctx, r.ID, func(cur *models.Invoice) (*models.Invoice, error) { return nil, nil })
	s.Require().NoError(err)
	got, err = s.store.GetRequest(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Nil(got.Invoice)
}

func (s *StoreSuite) TestRosterAndListing() {
	err := s.store.UpsertRoster(s.ctx,
		[]models.Manager{{ID: "m1", Name: "Ana Paula", Areas: []models.Area{models.AreaNorte}, Active: true}},
		[]models.Team{{ID: "t1", Name: "Equipe Alpha", ManagerID: "m1", Area: models.AreaNorte, Members: []string{"col-1"}, Active: true}},
	)
	s.Require().NoError(err)

	managers, err := s.store.ListManagers(s.ctx, models.AreaNorte)
	s.Require().NoError(err)
	s.Len(managers, 1)

	teams, err := s.store.ListTeams(s.ctx, "m1")
	s.Require().NoError(err)
	s.Require().Len(teams, 1)
	s.True(teams[0].HasMember("col-1"))

	r := s.newRequest()
	s.create(r)
	items, total, err := s.store.ListRequests(s.ctx, RequestFilter{
		Statuses: []models.Status{models.StatusPending},
		Scope:    Scope{ManagerID: "m1", ManagerAreas: []models.Area{models.AreaNorte}},
		Limit:    10,
	})
	s.Require().NoError(err)
	s.Equal(1, total)
	require.Len(s.T(), items, 1)
}

package stats

import (
	"testing"
	"time"

	"github.com/hive-services/backend/internal/models"
)

func TestComputeDerivesTiersFromSubmission(t *testing.T) {
	now := time.Date(2025, 10, 20, 10, 35, 0, 0, time.UTC)
	reqs := []models.ServiceRequest{
		{ID: "a", Status: models.StatusPending, ClientArea: models.AreaNorte, SubmittedAt: now.Add(-95 * time.Minute)},
		{ID: "b", Status: models.StatusPending, ClientArea: models.AreaNorte, SubmittedAt: now.Add(-10 * time.Minute)},
		// stored status urgent but tier is derived: critical
		{ID: "c", Status: models.StatusUrgent, ClientArea: models.AreaSul, SubmittedAt: now.Add(-3 * time.Hour)},
		// approved requests are out of the SLA window regardless of age
		{ID: "d", Status: models.StatusApproved, ClientArea: models.AreaSul, SubmittedAt: now.Add(-5 * time.Hour)},
	}

	s := Compute(reqs, now)
	if s.Total != 4 {
		t.Fatalf("expected total 4, got %d", s.Total)
	}
	if s.ByTier[models.TierUrgent] != 1 || s.ByTier[models.TierCritical] != 1 || s.ByTier[models.TierNormal] != 1 {
		t.Fatalf("unexpected tiers %+v", s.ByTier)
	}
	if s.ByStatus[models.StatusPending] != 2 || s.ByStatus[models.StatusUrgent] != 1 || s.ByStatus[models.StatusRejected] != 0 {
		t.Fatalf("unexpected status counts %+v", s.ByStatus)
	}
	if s.ByArea[models.AreaNorte] != 2 || s.ByArea[models.AreaCentro] != 0 {
		t.Fatalf("unexpected area counts %+v", s.ByArea)
	}
}

func TestComputeInvoiceTotals(t *testing.T) {
	now := time.Now()
	reqs := []models.ServiceRequest{
		{ID: "a", Status: models.StatusCompleted, Invoice: &models.Invoice{Number: "NF-1", Amount: 100, AvailableToClient: true}},
		{ID: "b", Status: models.StatusCompleted, Invoice: &models.Invoice{Number: "NF-2", Amount: 50.5}},
		{ID: "c", Status: models.StatusCompleted},
		{ID: "d", Status: models.StatusInProgress},
	}
	s := Compute(reqs, now)
	inv := s.Invoices
	if inv.Issued != 2 || inv.IssuedAmount != 150.5 {
		t.Fatalf("unexpected issued totals %+v", inv)
	}
	if inv.VisibleToClient != 1 || inv.VisibleAmount != 100 {
		t.Fatalf("unexpected visible totals %+v", inv)
	}
	if inv.AwaitingInvoice != 1 {
		t.Fatalf("expected one completed request awaiting invoice, got %d", inv.AwaitingInvoice)
	}
}

func TestComputeReflectsEachCall(t *testing.T) {
	now := time.Date(2025, 10, 20, 9, 0, 0, 0, time.UTC)
	reqs := []models.ServiceRequest{{ID: "a", Status: models.StatusPending, SubmittedAt: now}}
	if got := Compute(reqs, now).ByTier[models.TierNormal]; got != 1 {
		t.Fatalf("expected normal at submission, got %d", got)
	}
	if got := Compute(reqs, now.Add(2*time.Hour)).ByTier[models.TierCritical]; got != 1 {
		t.Fatalf("expected critical after two hours, got %d", got)
	}
	reqs[0].Status = models.StatusApproved
	if got := Compute(reqs, now.Add(2*time.Hour)).ByTier[models.TierCritical]; got != 0 {
		t.Fatalf("expected approved request to leave the tier counts, got %d", got)
	}
}

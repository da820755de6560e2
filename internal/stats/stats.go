// Package stats projects dashboard numbers from a set of requests.
package stats

import (
	"time"

	"github.com/hive-services/backend/internal/escalation"
	"github.com/hive-services/backend/internal/models"
)

type Snapshot struct {
	Total    int                   `json:"total"`
	ByStatus map[models.Status]int `json:"by_status"`
	ByArea   map[models.Area]int   `json:"by_area"`
	// ByTier covers only requests still awaiting a response.
	ByTier   map[models.Tier]int `json:"by_tier"`
	Invoices InvoiceTotals       `json:"invoices"`
	At       time.Time           `json:"at"`
}

type InvoiceTotals struct {
	Issued          int     `json:"issued"`
	IssuedAmount    float64 `json:"issued_amount"`
	VisibleToClient int     `json:"visible_to_client"`
	VisibleAmount   float64 `json:"visible_amount"`
	// AwaitingInvoice counts completed requests with no invoice yet.
	AwaitingInvoice int `json:"awaiting_invoice"`
}

// Compute derives a snapshot from requests as of now. Tiers are derived from
// submission time, never read from stored status.
func Compute(requests []models.ServiceRequest, now time.Time) Snapshot {
	s := Snapshot{
		ByStatus: make(map[models.Status]int, len(models.AllStatuses)),
		ByArea:   make(map[models.Area]int, len(models.AllAreas)),
		ByTier:   map[models.Tier]int{models.TierNormal: 0, models.TierUrgent: 0, models.TierCritical: 0},
		At:       now,
	}
	for _, st := range models.AllStatuses {
		s.ByStatus[st] = 0
	}
	for _, a := range models.AllAreas {
		s.ByArea[a] = 0
	}

	for _, r := range requests {
		s.Total++
		s.ByStatus[r.Status]++
		s.ByArea[r.ClientArea]++
		if r.Status.AwaitingResponse() {
			s.ByTier[escalation.Tier(r.SubmittedAt, now)]++
		}
		switch {
		case r.Invoice != nil:
			s.Invoices.Issued++
			s.Invoices.IssuedAmount += r.Invoice.Amount
			if r.Invoice.AvailableToClient {
				s.Invoices.VisibleToClient++
				s.Invoices.VisibleAmount += r.Invoice.Amount
			}
		case r.Status == models.StatusCompleted:
			s.Invoices.AwaitingInvoice++
		}
	}
	return s
}

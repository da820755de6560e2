package db

import (
	"context"
	"errors"

	"github.com/hive-services/backend/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a compare-and-set finds a different status than expected.
	ErrConflict = errors.New("status changed concurrently")
	ErrExists   = errors.New("already exists")
)

// Scope restricts a request listing to what one actor may see.
// Empty fields do not restrict.
type Scope struct {
	ClientID       string
	ManagerID      string
	ManagerAreas   []models.Area
	CollaboratorID string
	TeamNames      []string
}

// Allows reports whether r falls inside the scope.
func (sc Scope) Allows(r models.ServiceRequest) bool {
	if sc.ClientID != "" && r.ClientID != sc.ClientID {
		return false
	}
	if sc.ManagerID != "" {
		assigned := r.AssignedManagerID == sc.ManagerID
		inArea := r.AssignedManagerID == "" && containsArea(sc.ManagerAreas, r.ClientArea)
		if !assigned && !inArea {
			return false
		}
	}
	if sc.CollaboratorID != "" {
		if r.AssignedCollaborator != sc.CollaboratorID && (r.AssignedTeam == "" || !containsString(sc.TeamNames, r.AssignedTeam)) {
			return false
		}
	}
	return true
}

type RequestFilter struct {
	Statuses []models.Status
	Area     models.Area
	Search   string
	Scope    Scope
	// Limit 0 returns every match.
	Limit  int
	Offset int
}

// InvoiceMutation receives the current invoice (nil when absent) and returns the
// invoice to store, or nil to delete it.
type InvoiceMutation func(cur *models.Invoice) (*models.Invoice, error)

// PhotoMutation receives the current photo set (nil when absent) and returns the set to store.
type PhotoMutation func(cur *models.PhotoDocumentation) (*models.PhotoDocumentation, error)

type Repository interface {
	Ping(ctx context.Context) error

	CreateRequest(ctx context.Context, r models.ServiceRequest, ev models.RequestEvent) error
	// GetRequest returns the request with its invoice and photo documentation attached.
	GetRequest(ctx context.Context, id string) (models.ServiceRequest, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]models.ServiceRequest, int, error)
	// SwapRequest stores next only if the stored status still equals expected
	// and the stored version still equals next.Version. The stored version is
	// then incremented. ev is appended to the request's event log in the same step when non-nil.
	SwapRequest(ctx context.Context, next models.ServiceRequest, expected models.Status, ev *models.RequestEvent) error
	ListEvents(ctx context.Context, requestID string) ([]models.RequestEvent, error)

	// MutateInvoice and MutatePhotos serialize writers per request and sub-resource.
	MutateInvoice(ctx context.Context, requestID string, fn InvoiceMutation) (*models.Invoice, error)
	MutatePhotos(ctx context.Context, requestID string, fn PhotoMutation) (*models.PhotoDocumentation, error)

	UpsertRoster(ctx context.Context, managers []models.Manager, teams []models.Team) error
	GetManager(ctx context.Context, id string) (models.Manager, error)
	ListManagers(ctx context.Context, area models.Area) ([]models.Manager, error)
	ListTeams(ctx context.Context, managerID string) ([]models.Team, error)
	// ManagerLoads counts non-terminal requests per assigned manager.
	ManagerLoads(ctx context.Context) (map[string]int, error)

	Close()
}

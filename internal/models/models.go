package models

import "time"

type Status string

const (
	StatusPending          Status = "pending"
	StatusUrgent           Status = "urgent"
	StatusDelegated        Status = "delegated"
	StatusRefusedByManager Status = "refused-by-manager"
	StatusApproved         Status = "approved"
	StatusInProgress       Status = "in-progress"
	StatusCompleted        Status = "completed"
	StatusRejected         Status = "rejected"
)

var AllStatuses = []Status{
	StatusPending,
	StatusUrgent,
	StatusDelegated,
	StatusRefusedByManager,
	StatusApproved,
	StatusInProgress,
	StatusCompleted,
	StatusRejected,
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// AwaitingResponse reports whether the SLA clock still applies to a request in s.
func (s Status) AwaitingResponse() bool {
	return s == StatusPending || s == StatusUrgent
}

type Area string

const (
	AreaNorte  Area = "norte"
	AreaSul    Area = "sul"
	AreaLeste  Area = "leste"
	AreaOeste  Area = "oeste"
	AreaCentro Area = "centro"
)

var AllAreas = []Area{AreaNorte, AreaSul, AreaLeste, AreaOeste, AreaCentro}

func (a Area) Valid() bool {
	for _, v := range AllAreas {
		if v == a {
			return true
		}
	}
	return false
}

type Tier string

const (
	TierNormal   Tier = "normal"
	TierUrgent   Tier = "urgent"
	TierCritical Tier = "critical"
)

// Rank orders tiers so that callers can compare escalation levels.
func (t Tier) Rank() int {
	switch t {
	case TierUrgent:
		return 1
	case TierCritical:
		return 2
	default:
		return 0
	}
}

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleManager      Role = "manager"
	RoleClient       Role = "client"
	RoleCollaborator Role = "collaborator"
	// RoleSystem is used by the escalation sweep only. It is never accepted from callers.
	RoleSystem Role = "system"
)

func (r Role) External() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleClient, RoleCollaborator:
		return true
	default:
		return false
	}
}

type Actor struct {
	Role  Role   `json:"role"`
	ID    string `json:"id"`
	Areas []Area `json:"areas"`
}

func (a Actor) Covers(area Area) bool {
	for _, v := range a.Areas {
		if v == area {
			return true
		}
	}
	return false
}

var SystemActor = Actor{Role: RoleSystem, ID: "escalation-sweep"}

type ServiceRequest struct {
	ID                   string              `json:"id"`
	ClientID             string              `json:"client_id"`
	ClientName           string              `json:"client_name"`
	ClientArea           Area                `json:"client_area"`
	ServiceType          string              `json:"service_type"`
	Description          string              `json:"description"`
	SubmittedAt          time.Time           `json:"submitted_at"`
	Status               Status              `json:"status"`
	AssignedTeam         string              `json:"assigned_team,omitempty"`
	AssignedCollaborator string              `json:"assigned_collaborator,omitempty"`
	AssignedManagerID    string              `json:"assigned_manager_id,omitempty"`
	AssignedManager      string              `json:"assigned_manager,omitempty"`
	AssignedManagerArea  Area                `json:"assigned_manager_area,omitempty"`
	ScheduledDate        string              `json:"scheduled_date,omitempty"`
	ScheduledDescription string              `json:"scheduled_description,omitempty"`
	Observations         string              `json:"observations,omitempty"`
	AvailableDates       []string            `json:"available_dates"`
	UrgentReason         string              `json:"urgent_reason,omitempty"`
	RefusalReason        string              `json:"refusal_reason,omitempty"`
	RefusalDate          string              `json:"refusal_date,omitempty"`
	DelegationReason     string              `json:"delegation_reason,omitempty"`
	RejectionReason      string              `json:"rejection_reason,omitempty"`
	AlertedTier          Tier                `json:"-"`
	Version              int64               `json:"version"`
	Invoice              *Invoice            `json:"invoice,omitempty"`
	PhotoDocumentation   *PhotoDocumentation `json:"photo_documentation,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// Clone returns a deep copy so that callers can mutate the result freely.
func (r ServiceRequest) Clone() ServiceRequest {
	out := r
	out.AvailableDates = append([]string{}, r.AvailableDates...)
	if r.Invoice != nil {
		inv := *r.Invoice
		out.Invoice = &inv
	}
	if r.PhotoDocumentation != nil {
		pd := r.PhotoDocumentation.Clone()
		out.PhotoDocumentation = &pd
	}
	return out
}

type Invoice struct {
	Number            string  `json:"number"`
	Amount            float64 `json:"amount"`
	IssueDate         string  `json:"issue_date"`
	AvailableToClient bool    `json:"available_to_client"`
}

type PhotoKind string

const (
	PhotoBefore PhotoKind = "before"
	PhotoAfter  PhotoKind = "after"
)

func (k PhotoKind) Valid() bool {
	return k == PhotoBefore || k == PhotoAfter
}

type PhotoDocumentation struct {
	BeforePhotos []string `json:"before_photos"`
	AfterPhotos  []string `json:"after_photos"`
	UploadDate   string   `json:"upload_date"`
	UploadedBy   string   `json:"uploaded_by"`
}

func (p PhotoDocumentation) Clone() PhotoDocumentation {
	out := p
	out.BeforePhotos = append([]string{}, p.BeforePhotos...)
	out.AfterPhotos = append([]string{}, p.AfterPhotos...)
	return out
}

func (p PhotoDocumentation) List(kind PhotoKind) []string {
	if kind == PhotoAfter {
		return p.AfterPhotos
	}
	return p.BeforePhotos
}

type Manager struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Areas  []Area `json:"areas"`
	Active bool   `json:"active"`
}

func (m Manager) Covers(area Area) bool {
	for _, a := range m.Areas {
		if a == area {
			return true
		}
	}
	return false
}

type Team struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	ManagerID string   `json:"manager_id"`
	Area      Area     `json:"area"`
	Members   []string `json:"members"`
	Active    bool     `json:"active"`
}

func (t Team) HasMember(id string) bool {
	for _, m := range t.Members {
		if m == id {
			return true
		}
	}
	return false
}

// RequestEvent is an immutable audit entry written with every committed transition.
type RequestEvent struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ActorRole Role      `json:"actor_role"`
	ActorID   string    `json:"actor_id"`
	Note      string    `json:"note,omitempty"`
	At        time.Time `json:"at"`
}

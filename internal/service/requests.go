package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hive-services/backend/internal/apperrors"
	"github.com/hive-services/backend/internal/db"
	"github.com/hive-services/backend/internal/escalation"
	"github.com/hive-services/backend/internal/models"
	"github.com/hive-services/backend/internal/notify"
)

type SubmitInput struct {
	ClientName     string      `json:"client_name" validate:"required,max=200"`
	ClientArea     models.Area `json:"client_area" validate:"required,oneof=norte sul leste oeste centro"`
	ServiceType    string      `json:"service_type" validate:"required,max=120"`
	Description    string      `json:"description" validate:"required,max=4000"`
	AvailableDates []string    `json:"available_dates" validate:"dive,required"`
	Observations   string      `json:"observations" validate:"max=4000"`
}

type ListQuery struct {
	Statuses []models.Status
	Area     models.Area
	Search   string
	Limit    int
	Offset   int
}

// RequestView is a request as callers see it: the stored record plus the
// submission timestamp in the local zone and a freshly derived tier.
type RequestView struct {
	models.ServiceRequest
	RequestDate    string          `json:"request_date"`
	RequestTime    string          `json:"request_time"`
	Tier           models.Tier     `json:"tier"`
	ElapsedHours   int             `json:"elapsed_hours"`
	ElapsedMinutes int             `json:"elapsed_minutes"`
	Actions        []models.Status `json:"actions"`
}

type RequestPage struct {
	Items  []RequestView `json:"items"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

const maxPageSize = 200

type RequestService struct {
	Repo      db.Repository
	Policy    *Policy
	Resolver  *AssignmentResolver
	Validator *validator.Validate
	Notifier  notify.Notifier
	Logger    zerolog.Logger
	Location  *time.Location
	Clock     Clock
}

// Submit creates a pending request owned by the client actor.
func (s *RequestService) Submit(ctx context.Context, actor models.Actor, in SubmitInput) (RequestView, error) {
	if err := checkActor(actor); err != nil {
		return RequestView{}, err
	}
	if actor.Role != models.RoleClient {
		return RequestView{}, apperrors.InvalidTransition("only clients submit requests")
	}
	in.ClientName = strings.TrimSpace(in.ClientName)
	in.ServiceType = strings.TrimSpace(in.ServiceType)
	in.Description = strings.TrimSpace(in.Description)
	if err := s.Validator.Struct(in); err != nil {
		return RequestView{}, apperrors.Validation("%s", validationMessage(err))
	}

	now := s.Clock.now()
	r := models.ServiceRequest{
		ID:             uuid.NewString(),
		ClientID:       actor.ID,
		ClientName:     in.ClientName,
		ClientArea:     in.ClientArea,
		ServiceType:    in.ServiceType,
		Description:    in.Description,
		SubmittedAt:    now,
		Status:         models.StatusPending,
		Observations:   strings.TrimSpace(in.Observations),
		AvailableDates: uniqueStrings(in.AvailableDates),
		AlertedTier:    models.TierNormal,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	ev := models.RequestEvent{
		ID:        uuid.NewString(),
		RequestID: r.ID,
		To:        models.StatusPending,
		ActorRole: actor.Role,
		ActorID:   actor.ID,
		At:        now,
	}
	if err := s.Repo.CreateRequest(ctx, r, ev); err != nil {
		return RequestView{}, storeError(err, "request")
	}
	s.Logger.Info().Str("request_id", r.ID).Str("client_id", r.ClientID).Str("area", string(r.ClientArea)).Msg("request submitted")

	if s.Notifier != nil {
		s.Notifier.Enqueue(notify.Notification{
			RecipientRole: models.RoleManager,
			RecipientID:   notify.Broadcast,
			Message:       fmt.Sprintf("New %s request from %s in area %s", r.ServiceType, r.ClientName, r.ClientArea),
			RequestID:     r.ID,
		})
	}
	return s.view(actor, r, now), nil
}

func (s *RequestService) Get(ctx context.Context, actor models.Actor, id string) (RequestView, error) {
	r, err := s.load(ctx, actor, id)
	if err != nil {
		return RequestView{}, err
	}
	return s.view(actor, r, s.Clock.now()), nil
}

// View renders r for actor the way Get does, without reloading it.
func (s *RequestService) View(actor models.Actor, r models.ServiceRequest) RequestView {
	return s.view(actor, r, s.Clock.now())
}

func (s *RequestService) List(ctx context.Context, actor models.Actor, q ListQuery) (RequestPage, error) {
	scope, err := s.scope(ctx, actor)
	if err != nil {
		return RequestPage{}, err
	}
	for _, st := range q.Statuses {
		if !st.Valid() {
			return RequestPage{}, apperrors.Validation("unknown status %q", st)
		}
	}
	if q.Area != "" && !q.Area.Valid() {
		return RequestPage{}, apperrors.Validation("unknown area %q", q.Area)
	}
	if q.Limit < 0 || q.Offset < 0 {
		return RequestPage{}, apperrors.Validation("limit and offset must not be negative")
	}
	if q.Limit == 0 || q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}

	items, total, err := s.Repo.ListRequests(ctx, db.RequestFilter{
		Statuses: q.Statuses,
		Area:     q.Area,
		Search:   q.Search,
		Scope:    scope,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		return RequestPage{}, storeError(err, "requests")
	}
	now := s.Clock.now()
	page := RequestPage{Items: make([]RequestView, 0, len(items)), Total: total, Limit: q.Limit, Offset: q.Offset}
	for _, r := range items {
		page.Items = append(page.Items, s.view(actor, r, now))
	}
	return page, nil
}

func (s *RequestService) History(ctx context.Context, actor models.Actor, id string) ([]models.RequestEvent, error) {
	if _, err := s.load(ctx, actor, id); err != nil {
		return nil, err
	}
	events, err := s.Repo.ListEvents(ctx, id)
	if err != nil {
		return nil, storeError(err, "request")
	}
	return events, nil
}

// AddAvailableDate adds date to the request's available dates. Adding a date
// that is already present is a no-op.
func (s *RequestService) AddAvailableDate(ctx context.Context, actor models.Actor, id, date string, expected models.Status) (RequestView, error) {
	return s.editDates(ctx, actor, id, expected, func(dates []string) ([]string, error) {
		date = strings.TrimSpace(date)
		if date == "" {
			return nil, apperrors.Validation("date is required")
		}
		return uniqueStrings(append(dates, date)), nil
	})
}

func (s *RequestService) RemoveAvailableDate(ctx context.Context, actor models.Actor, id, date string, expected models.Status) (RequestView, error) {
	return s.editDates(ctx, actor, id, expected, func(dates []string) ([]string, error) {
		date = strings.TrimSpace(date)
		out := make([]string, 0, len(dates))
		for _, d := range dates {
			if d != date {
				out = append(out, d)
			}
		}
		return out, nil
	})
}

// Eligibility lists managers a request could be delegated to.
func (s *RequestService) Eligibility(ctx context.Context, actor models.Actor, id string) (EligibilityResult, error) {
	if actor.Role != models.RoleAdmin {
		return EligibilityResult{}, apperrors.InvalidTransition("only admins delegate requests")
	}
	r, err := s.load(ctx, actor, id)
	if err != nil {
		return EligibilityResult{}, err
	}
	res, err := s.Resolver.Eligibility(ctx, r)
	if err != nil {
		return EligibilityResult{}, storeError(err, "roster")
	}
	return res, nil
}

func (s *RequestService) editDates(ctx context.Context, actor models.Actor, id string, expected models.Status, edit func([]string) ([]string, error)) (RequestView, error) {
	cur, err := s.load(ctx, actor, id)
	if err != nil {
		return RequestView{}, err
	}
	if actor.Role != models.RoleClient && actor.Role != models.RoleAdmin {
		return RequestView{}, apperrors.InvalidTransition("role %s may not edit available dates", actor.Role)
	}
	if err := checkExpected(cur, expected); err != nil {
		return RequestView{}, err
	}
	switch cur.Status {
	case models.StatusPending, models.StatusUrgent, models.StatusDelegated, models.StatusRefusedByManager:
	default:
		return RequestView{}, apperrors.InvalidTransition("available dates are locked once a request is %s", cur.Status)
	}

	next := cur.Clone()
	dates, err := edit(next.AvailableDates)
	if err != nil {
		return RequestView{}, err
	}
	now := s.Clock.now()
	next.AvailableDates = dates
	next.UpdatedAt = now
	if err := s.Repo.SwapRequest(ctx, next, cur.Status, nil); err != nil {
		return RequestView{}, storeError(err, "request")
	}
	next.Version++
	return s.view(actor, next, now), nil
}

// load fetches a request and checks that actor may see it. Requests outside
// the actor's scope are reported as not found.
func (s *RequestService) load(ctx context.Context, actor models.Actor, id string) (models.ServiceRequest, error) {
	scope, err := s.scope(ctx, actor)
	if err != nil {
		return models.ServiceRequest{}, err
	}
	r, err := s.Repo.GetRequest(ctx, id)
	if err != nil {
		return models.ServiceRequest{}, storeError(err, "request")
	}
	if !scope.Allows(r) {
		return models.ServiceRequest{}, apperrors.NotFound("request")
	}
	return r, nil
}

func (s *RequestService) scope(ctx context.Context, actor models.Actor) (db.Scope, error) {
	if err := checkActor(actor); err != nil {
		return db.Scope{}, err
	}
	switch actor.Role {
	case models.RoleClient:
		return db.Scope{ClientID: actor.ID}, nil
	case models.RoleManager:
		return db.Scope{ManagerID: actor.ID, ManagerAreas: actor.Areas}, nil
	case models.RoleCollaborator:
		teams, err := s.Resolver.TeamsOf(ctx, actor.ID)
		if err != nil {
			return db.Scope{}, fmt.Errorf("roster: %w", err)
		}
		return db.Scope{CollaboratorID: actor.ID, TeamNames: teams}, nil
	default:
		return db.Scope{}, nil
	}
}

func (s *RequestService) view(actor models.Actor, r models.ServiceRequest, now time.Time) RequestView {
	r = redactForActor(actor, r)
	local := r.SubmittedAt.In(location(s.Location))
	h, m := escalation.Elapsed(r.SubmittedAt, now)
	v := RequestView{
		ServiceRequest: r,
		RequestDate:    local.Format("02/01/2006"),
		RequestTime:    local.Format("15:04"),
		Tier:           escalation.RequestTier(r, now),
		ElapsedHours:   h,
		ElapsedMinutes: m,
	}
	if s.Policy != nil {
		v.Actions = s.Policy.Targets(actor.Role, r.Status)
	}
	if v.Actions == nil {
		v.Actions = []models.Status{}
	}
	return v
}

// redactForActor hides the invoice from clients until it is released to them.
func redactForActor(actor models.Actor, r models.ServiceRequest) models.ServiceRequest {
	if actor.Role == models.RoleClient && r.Invoice != nil && !r.Invoice.AvailableToClient {
		r.Invoice = nil
	}
	return r
}

func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, d := range in {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

package service

import (
	"context"
	"errors"
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

// Command carries the inputs a transition may need. Fields a given edge
// does not use are ignored.
type Command struct {
	ExpectedStatus       models.Status `json:"expected_status" validate:"omitempty,oneof=pending urgent delegated refused-by-manager approved in-progress completed rejected"`
	Reason               string        `json:"reason" validate:"max=2000"`
	RefusalDate          string        `json:"refusal_date" validate:"omitempty,datetime=2006-01-02"`
	ManagerID            string        `json:"manager_id" validate:"max=64"`
	Area                 models.Area   `json:"area" validate:"omitempty,oneof=norte sul leste oeste centro"`
	Team                 string        `json:"team" validate:"max=120"`
	Collaborator         string        `json:"collaborator" validate:"max=64"`
	ScheduledDate        string        `json:"scheduled_date" validate:"omitempty,datetime=2006-01-02"`
	ScheduledDescription string        `json:"scheduled_description" validate:"max=2000"`
	Observations         string        `json:"observations" validate:"max=4000"`
}

// Engine applies status changes. It is the only writer of ServiceRequest.Status.
type Engine struct {
	Repo      db.Repository
	Policy    *Policy
	Resolver  *AssignmentResolver
	Validator *validator.Validate
	Notifier  notify.Notifier
	Logger    zerolog.Logger
	Location  *time.Location
	Clock     Clock
}

func (e *Engine) Escalate(ctx context.Context, actor models.Actor, id string, cmd Command) (models.ServiceRequest, error) {
	return e.Transition(ctx, actor, id, models.StatusUrgent, cmd)
}

func (e *Engine) Delegate(ctx context.Context, actor models.Actor, id string, cmd Command) (models.ServiceRequest, error) {
	return e.Transition(ctx, actor, id, models.StatusDelegated, cmd)
}

func (e *Engine) Approve(ctx context.Context, actor models.Actor, id string, cmd Command) (models.ServiceRequest, error) {
	return e.Transition(ctx, actor, id, models.StatusApproved, cmd)
}

func (e *Engine) Refuse(ctx context.Context, actor models.Actor, id string, cmd Command) (models.ServiceRequest, error) {
	return e.Transition(ctx, actor, id, models.StatusRefusedByManager, cmd)
}

func (e *Engine) Start(ctx context.Context, actor models.Actor, id string, cmd Command) (models.ServiceRequest, error) {
	return e.Transition(ctx, actor, id, models.StatusInProgress, cmd)
}

func (e *Engine) Complete(ctx context.Context, actor models.Actor, id string, cmd Command) (models.ServiceRequest, error) {
	return e.Transition(ctx, actor, id, models.StatusCompleted, cmd)
}

func (e *Engine) Reject(ctx context.Context, actor models.Actor, id string, cmd Command) (models.ServiceRequest, error) {
	return e.Transition(ctx, actor, id, models.StatusRejected, cmd)
}

// Transition moves request id to status to on behalf of actor. The write is a
// compare-and-set on the status and version read here; losing the race
// returns ConcurrentModification.
func (e *Engine) Transition(ctx context.Context, actor models.Actor, id string, to models.Status, cmd Command) (models.ServiceRequest, error) {
	if err := checkActor(actor); err != nil {
		return models.ServiceRequest{}, err
	}
	if e.Validator != nil {
		if err := e.Validator.Struct(cmd); err != nil {
			return models.ServiceRequest{}, apperrors.Validation("%s", validationMessage(err))
		}
	}
	if !to.Valid() {
		return models.ServiceRequest{}, apperrors.Validation("unknown status %q", to)
	}

	cur, err := e.Repo.GetRequest(ctx, id)
	if err != nil {
		return models.ServiceRequest{}, storeError(err, "request")
	}
	if err := checkExpected(cur, cmd.ExpectedStatus); err != nil {
		return models.ServiceRequest{}, err
	}
	from := cur.Status

	if !CanTransition(from, to) {
		return models.ServiceRequest{}, apperrors.InvalidTransition("cannot move request from %s to %s", from, to)
	}
	allowed, err := e.Policy.Allowed(actor.Role, from, to)
	if err != nil {
		return models.ServiceRequest{}, fmt.Errorf("policy: %w", err)
	}
	if !allowed {
		return models.ServiceRequest{}, apperrors.InvalidTransition("role %s may not move request from %s to %s", actor.Role, from, to)
	}
	if err := e.guardOwnership(ctx, actor, cur); err != nil {
		return models.ServiceRequest{}, err
	}

	now := e.Clock.now()
	next := cur.Clone()
	if err := e.apply(ctx, actor, &next, to, cmd, now); err != nil {
		return models.ServiceRequest{}, err
	}
	next.Status = to
	next.UpdatedAt = now
	if obs := strings.TrimSpace(cmd.Observations); obs != "" {
		next.Observations = obs
	}

	ev := models.RequestEvent{
		ID:        uuid.NewString(),
		RequestID: id,
		From:      from,
		To:        to,
		ActorRole: actor.Role,
		ActorID:   actor.ID,
		Note:      strings.TrimSpace(cmd.Reason),
		At:        now,
	}
	if err := e.Repo.SwapRequest(ctx, next, from, &ev); err != nil {
		mapped := storeError(err, "request")
		if errors.Is(mapped, apperrors.ErrConcurrentModification) {
			e.Logger.Warn().Str("request_id", id).Str("from", string(from)).Str("to", string(to)).
				Str("actor_role", string(actor.Role)).Str("actor_id", actor.ID).Msg("transition lost compare-and-set")
		}
		return models.ServiceRequest{}, mapped
	}
	next.Version++

	e.Logger.Info().
		Str("request_id", id).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor_role", string(actor.Role)).
		Str("actor_id", actor.ID).
		Msg("request transitioned")

	e.announce(next, from)
	return next, nil
}

// AutoEscalate flips a pending request to urgent as the system actor.
func (e *Engine) AutoEscalate(ctx context.Context, id string, expected models.Status) error {
	_, err := e.Transition(ctx, models.SystemActor, id, models.StatusUrgent, Command{ExpectedStatus: expected})
	return err
}

// MarkAlerted records that notifications for tier were sent, provided the
// request still has status expected.
func (e *Engine) MarkAlerted(ctx context.Context, id string, expected models.Status, tier models.Tier) error {
	cur, err := e.Repo.GetRequest(ctx, id)
	if err != nil {
		return storeError(err, "request")
	}
	if cur.Status != expected {
		return apperrors.ConcurrentModification()
	}
	if cur.AlertedTier.Rank() >= tier.Rank() {
		return nil
	}
	next := cur.Clone()
	next.AlertedTier = tier
	return storeError(e.Repo.SwapRequest(ctx, next, expected, nil), "request")
}

func (e *Engine) guardOwnership(ctx context.Context, actor models.Actor, cur models.ServiceRequest) error {
	switch actor.Role {
	case models.RoleManager:
		if !OwnsAsManager(actor, cur) {
			return apperrors.InvalidTransition("request %s is not assigned to manager %s", cur.ID, actor.ID)
		}
	case models.RoleCollaborator:
		ok, err := e.Resolver.AssignedCollaborator(ctx, cur, actor.ID)
		if err != nil {
			return fmt.Errorf("roster: %w", err)
		}
		if !ok {
			return apperrors.InvalidTransition("request %s is not assigned to collaborator %s", cur.ID, actor.ID)
		}
	}
	return nil
}

func (e *Engine) apply(ctx context.Context, actor models.Actor, next *models.ServiceRequest, to models.Status, cmd Command, now time.Time) error {
	reason := strings.TrimSpace(cmd.Reason)
	switch to {
	case models.StatusUrgent:
		if reason == "" {
			if actor.Role != models.RoleSystem {
				return apperrors.Validation("reason is required to flag a request as urgent")
			}
			h, m := escalation.Elapsed(next.SubmittedAt, now)
			reason = fmt.Sprintf("no response after %dh%02dm", h, m)
		}
		next.UrgentReason = reason
		if next.AlertedTier.Rank() < models.TierUrgent.Rank() {
			next.AlertedTier = models.TierUrgent
		}
	case models.StatusDelegated:
		if err := e.Resolver.Delegate(ctx, next, cmd.ManagerID, cmd.Area); err != nil {
			return err
		}
		next.DelegationReason = reason
	case models.StatusApproved:
		return e.Resolver.Approve(ctx, actor, next, Assignment{
			ManagerID:     cmd.ManagerID,
			Team:          cmd.Team,
			Collaborator:  cmd.Collaborator,
			ScheduledDate: cmd.ScheduledDate,
			Description:   cmd.ScheduledDescription,
		})
	case models.StatusRefusedByManager:
		if reason == "" {
			return apperrors.Validation("refusal reason is required")
		}
		date := strings.TrimSpace(cmd.RefusalDate)
		if date == "" {
			date = now.In(location(e.Location)).Format("2006-01-02")
		}
		next.RefusalReason = reason
		next.RefusalDate = date
	case models.StatusRejected:
		next.RejectionReason = reason
	}
	return nil
}

func (e *Engine) announce(r models.ServiceRequest, from models.Status) {
	if e.Notifier == nil {
		return
	}
	send := func(role models.Role, id, msg string) {
		e.Notifier.Enqueue(notify.Notification{RecipientRole: role, RecipientID: id, Message: msg, RequestID: r.ID})
	}
	manager := r.AssignedManagerID
	if manager == "" {
		manager = notify.Broadcast
	}

	switch r.Status {
	case models.StatusUrgent:
		msg := fmt.Sprintf("Request %s from %s (%s) is urgent: %s", r.ID, r.ClientName, r.ClientArea, r.UrgentReason)
		send(models.RoleAdmin, notify.Broadcast, msg)
		send(models.RoleManager, manager, msg)
	case models.StatusDelegated:
		send(models.RoleManager, r.AssignedManagerID, fmt.Sprintf("Request %s was delegated to you (area %s)", r.ID, r.AssignedManagerArea))
	case models.StatusApproved:
		send(models.RoleClient, r.ClientID, fmt.Sprintf("Your request %s was approved for %s", r.ID, r.ScheduledDate))
		if r.AssignedCollaborator != "" {
			send(models.RoleCollaborator, r.AssignedCollaborator, fmt.Sprintf("Request %s scheduled for %s", r.ID, r.ScheduledDate))
		}
	case models.StatusRefusedByManager:
		send(models.RoleAdmin, notify.Broadcast, fmt.Sprintf("Request %s was refused: %s", r.ID, r.RefusalReason))
	case models.StatusInProgress:
		send(models.RoleClient, r.ClientID, fmt.Sprintf("Work on request %s has started", r.ID))
	case models.StatusCompleted:
		send(models.RoleClient, r.ClientID, fmt.Sprintf("Request %s was completed", r.ID))
		send(models.RoleAdmin, notify.Broadcast, fmt.Sprintf("Request %s was completed and awaits an invoice", r.ID))
	case models.StatusRejected:
		send(models.RoleClient, r.ClientID, fmt.Sprintf("Your request %s was rejected (was %s)", r.ID, from))
	}
}

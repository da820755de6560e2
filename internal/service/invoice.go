package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hive-services/backend/internal/apperrors"
	"github.com/hive-services/backend/internal/models"
	"github.com/hive-services/backend/internal/notify"
)

type InvoiceInput struct {
	Number    string  `json:"number" validate:"required,max=64"`
	Amount    float64 `json:"amount" validate:"money"`
	IssueDate string  `json:"issue_date" validate:"required,max=32"`
}

// InvoicePatch is merged field by field; nil fields are left as they are.
type InvoicePatch struct {
	Number            *string  `json:"number" validate:"omitempty,max=64"`
	Amount            *float64 `json:"amount" validate:"omitempty,money"`
	IssueDate         *string  `json:"issue_date" validate:"omitempty,max=32"`
	AvailableToClient *bool    `json:"available_to_client"`
}

// InvoiceLedger manages the optional invoice of a completed request.
type InvoiceLedger struct {
	Requests *RequestService
	Notifier notify.Notifier
	Logger   zerolog.Logger
}

func (l *InvoiceLedger) Get(ctx context.Context, actor models.Actor, requestID string) (models.Invoice, error) {
	r, err := l.Requests.load(ctx, actor, requestID)
	if err != nil {
		return models.Invoice{}, err
	}
	r = redactForActor(actor, r)
	if r.Invoice == nil {
		return models.Invoice{}, apperrors.NotFound("invoice")
	}
	return *r.Invoice, nil
}

func (l *InvoiceLedger) Create(ctx context.Context, actor models.Actor, requestID string, in InvoiceInput) (models.Invoice, error) {
	r, err := l.writable(ctx, actor, requestID)
	if err != nil {
		return models.Invoice{}, err
	}
	if r.Status != models.StatusCompleted {
		return models.Invoice{}, apperrors.Validation("an invoice can only be issued for a completed request (status is %s)", r.Status)
	}
	if err := l.Requests.Validator.Struct(in); err != nil {
		return models.Invoice{}, apperrors.Validation("%s", validationMessage(err))
	}
	inv := models.Invoice{
		Number:    strings.TrimSpace(in.Number),
		Amount:    in.Amount,
		IssueDate: strings.TrimSpace(in.IssueDate),
	}
	if err := validateInvoice(inv); err != nil {
		return models.Invoice{}, err
	}

	out, err := l.Requests.Repo.MutateInvoice(ctx, requestID, func(cur *models.Invoice) (*models.Invoice, error) {
		if cur != nil {
			return nil, apperrors.Validation("request already has invoice %s", cur.Number)
		}
		return &inv, nil
	})
	if err != nil {
		return models.Invoice{}, storeError(err, "request")
	}
	l.Logger.Info().Str("request_id", requestID).Str("invoice", out.Number).Float64("amount", out.Amount).Msg("invoice issued")
	return *out, nil
}

func (l *InvoiceLedger) Update(ctx context.Context, actor models.Actor, requestID string, patch InvoicePatch) (models.Invoice, error) {
	if _, err := l.writable(ctx, actor, requestID); err != nil {
		return models.Invoice{}, err
	}
	if err := l.Requests.Validator.Struct(patch); err != nil {
		return models.Invoice{}, apperrors.Validation("%s", validationMessage(err))
	}
	out, err := l.Requests.Repo.MutateInvoice(ctx, requestID, func(cur *models.Invoice) (*models.Invoice, error) {
		if cur == nil {
			return nil, apperrors.NotFound("invoice")
		}
		next := *cur
		if patch.Number != nil {
			next.Number = strings.TrimSpace(*patch.Number)
		}
		if patch.Amount != nil {
			next.Amount = *patch.Amount
		}
		if patch.IssueDate != nil {
			next.IssueDate = strings.TrimSpace(*patch.IssueDate)
		}
		if patch.AvailableToClient != nil {
			next.AvailableToClient = *patch.AvailableToClient
		}
		if err := validateInvoice(next); err != nil {
			return nil, err
		}
		return &next, nil
	})
	if err != nil {
		return models.Invoice{}, storeError(err, "request")
	}
	return *out, nil
}

// ToggleVisibility flips whether the client can see the invoice.
func (l *InvoiceLedger) ToggleVisibility(ctx context.Context, actor models.Actor, requestID string) (models.Invoice, error) {
	r, err := l.writable(ctx, actor, requestID)
	if err != nil {
		return models.Invoice{}, err
	}
	out, err := l.Requests.Repo.MutateInvoice(ctx, requestID, func(cur *models.Invoice) (*models.Invoice, error) {
		if cur == nil {
			return nil, apperrors.NotFound("invoice")
		}
		next := *cur
		next.AvailableToClient = !cur.AvailableToClient
		return &next, nil
	})
	if err != nil {
		return models.Invoice{}, storeError(err, "request")
	}
	if out.AvailableToClient && l.Notifier != nil {
		l.Notifier.Enqueue(notify.Notification{
			RecipientRole: models.RoleClient,
			RecipientID:   r.ClientID,
			Message:       "Invoice " + out.Number + " is available",
			RequestID:     requestID,
		})
	}
	return *out, nil
}

func (l *InvoiceLedger) Delete(ctx context.Context, actor models.Actor, requestID string) error {
	if _, err := l.writable(ctx, actor, requestID); err != nil {
		return err
	}
	_, err := l.Requests.Repo.MutateInvoice(ctx, requestID, func(cur *models.Invoice) (*models.Invoice, error) {
		if cur == nil {
			return nil, apperrors.NotFound("invoice")
		}
		return nil, nil
	})
	if err != nil {
		return storeError(err, "request")
	}
	l.Logger.Info().Str("request_id", requestID).Msg("invoice deleted")
	return nil
}

func (l *InvoiceLedger) writable(ctx context.Context, actor models.Actor, requestID string) (models.ServiceRequest, error) {
	r, err := l.Requests.load(ctx, actor, requestID)
	if err != nil {
		return models.ServiceRequest{}, err
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleManager:
		if !OwnsAsManager(actor, r) {
			return models.ServiceRequest{}, apperrors.InvalidTransition("request %s is not assigned to manager %s", r.ID, actor.ID)
		}
	default:
		return models.ServiceRequest{}, apperrors.InvalidTransition("role %s may not manage invoices", actor.Role)
	}
	return r, nil
}

func validateInvoice(inv models.Invoice) error {
	if inv.Number == "" {
		return apperrors.Validation("invoice number is required")
	}
	if inv.IssueDate == "" {
		return apperrors.Validation("invoice issue date is required")
	}
	if !validMoney(inv.Amount) {
		return apperrors.Validation("invoice amount must be positive, with at most two decimals and at most %.2f", maxInvoiceAmount)
	}
	return nil
}

package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hive-services/backend/internal/apperrors"
	"github.com/hive-services/backend/internal/db"
	"github.com/hive-services/backend/internal/models"
)

// Clock returns the current time. Tests inject a fixed one.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

func storeError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrNotFound):
		return apperrors.NotFound(what)
	case errors.Is(err, db.ErrConflict):
		return apperrors.ConcurrentModification()
	case errors.Is(err, db.ErrExists):
		return apperrors.Validation("%s already exists", what)
	default:
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return appErr
		}
		return fmt.Errorf("%s: %w", what, err)
	}
}

func checkActor(actor models.Actor) error {
	if actor.Role == models.RoleSystem {
		return nil
	}
	if !actor.Role.External() {
		return apperrors.New(apperrors.KindUnauthorized, "unknown actor role")
	}
	if strings.TrimSpace(actor.ID) == "" {
		return apperrors.New(apperrors.KindUnauthorized, "actor id is required")
	}
	return nil
}

func checkExpected(cur models.ServiceRequest, expected models.Status) error {
	if expected != "" && expected != cur.Status {
		return apperrors.ConcurrentModification()
	}
	return nil
}

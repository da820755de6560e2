package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hive-services/backend/internal/models"
)

// Store is the Postgres Repository.
type Store struct {
	Pool *pgxpool.Pool
}

var _ Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const requestColumns = `r.id, r.client_id, r.client_name, r.client_area, r.service_type, r.description,
	r.submitted_at, r.status, r.assigned_team, r.assigned_collaborator, r.assigned_manager_id,
	r.assigned_manager, r.assigned_manager_area, r.scheduled_date, r.scheduled_description,
	r.observations, r.available_dates, r.urgent_reason, r.refusal_reason, r.refusal_date,
	r.delegation_reason, r.rejection_reason, r.alerted_tier, r.version, r.created_at, r.updated_at,
	i.number, i.amount::float8, i.issue_date, i.available_to_client,
	p.before_photos, p.after_photos, p.upload_date, p.uploaded_by`

const requestFrom = `FROM service_requests r
	LEFT JOIN invoices i ON i.request_id = r.id
	LEFT JOIN photo_documentation p ON p.request_id = r.id`

func scanRequest(row pgx.Row) (models.ServiceRequest, error) {
	var (
		r            models.ServiceRequest
		clientArea   string
		status       string
		managerArea  string
		alertedTier  string
		invNumber    *string
		invAmount    *float64
		invIssueDate *string
		invVisible   *bool
		before       []string
		after        []string
		uploadDate   *string
		uploadedBy   *string
	)
	if err := row.Scan(
		&r.ID, &r.ClientID, &r.ClientName, &clientArea, &r.ServiceType, &r.Description,
		&r.SubmittedAt, &status, &r.AssignedTeam, &r.AssignedCollaborator, &r.AssignedManagerID,
		&r.AssignedManager, &managerArea, &r.ScheduledDate, &r.ScheduledDescription,
		&r.Observations, &r.AvailableDates, &r.UrgentReason, &r.RefusalReason, &r.RefusalDate,
		&r.DelegationReason, &r.RejectionReason, &alertedTier, &r.Version, &r.CreatedAt, &r.UpdatedAt,
		&invNumber, &invAmount, &invIssueDate, &invVisible,
		&before, &after, &uploadDate, &uploadedBy,
	); err != nil {
		return models.ServiceRequest{}, err
	}
	r.ClientArea = models.Area(clientArea)
	r.Status = models.Status(status)
	r.AssignedManagerArea = models.Area(managerArea)
	r.AlertedTier = models.Tier(alertedTier)
	if r.AvailableDates == nil {
		r.AvailableDates = []string{}
	}
	if invNumber != nil {
		r.Invoice = &models.Invoice{
			Number:            *invNumber,
			Amount:            derefFloat(invAmount),
			IssueDate:         derefString(invIssueDate),
			AvailableToClient: invVisible != nil && *invVisible,
		}
	}
	if uploadDate != nil {
		r.PhotoDocumentation = &models.PhotoDocumentation{
			BeforePhotos: nonNil(before),
			AfterPhotos:  nonNil(after),
			UploadDate:   *uploadDate,
			UploadedBy:   derefString(uploadedBy),
		}
	}
	return r, nil
}

func (s *Store) CreateRequest(ctx context.Context, r models.ServiceRequest, ev models.RequestEvent) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO service_requests (id, client_id, client_name, client_area, service_type, description,
				submitted_at, status, observations, available_dates, alerted_tier, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, r.ID, r.ClientID, r.ClientName, string(r.ClientArea), r.ServiceType, r.Description,
			r.SubmittedAt, string(r.Status), r.Observations, nonNil(r.AvailableDates), tierOrNormal(r.AlertedTier),
			r.CreatedAt, r.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrExists
			}
			return err
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (s *Store) GetRequest(ctx context.Context, id string) (models.ServiceRequest, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+requestColumns+` `+requestFrom+` WHERE r.id = $1`, id)
	r, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ServiceRequest{}, ErrNotFound
		}
		return models.ServiceRequest{}, err
	}
	return r, nil
}

func buildRequestWhere(f RequestFilter) (string, []any) {
	var args []any
	var wheres []string
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			statuses = append(statuses, string(st))
		}
		args = append(args, statuses)
		wheres = append(wheres, fmt.Sprintf("r.status = ANY($%d)", len(args)))
	}
	if f.Area != "" {
		args = append(args, string(f.Area))
		wheres = append(wheres, fmt.Sprintf("r.client_area = $%d", len(args)))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+q+"%")
		wheres = append(wheres, fmt.Sprintf("(r.client_name ILIKE $%d OR r.service_type ILIKE $%d OR r.id ILIKE $%d)", len(args), len(args), len(args)))
	}
	sc := f.Scope
	if sc.ClientID != "" {
		args = append(args, sc.ClientID)
		wheres = append(wheres, fmt.Sprintf("r.client_id = $%d", len(args)))
	}
	if sc.ManagerID != "" {
		areas := make([]string, 0, len(sc.ManagerAreas))
		for _, a := range sc.ManagerAreas {
			areas = append(areas, string(a))
		}
		args = append(args, sc.ManagerID, areas)
		wheres = append(wheres, fmt.Sprintf("(r.assigned_manager_id = $%d OR (r.assigned_manager_id = '' AND r.client_area = ANY($%d)))", len(args)-1, len(args)))
	}
	if sc.CollaboratorID != "" {
		teams := append([]string{}, sc.TeamNames...)
		args = append(args, sc.CollaboratorID, teams)
		wheres = append(wheres, fmt.Sprintf("(r.assigned_collaborator = $%d OR (r.assigned_team <> '' AND r.assigned_team = ANY($%d)))", len(args)-1, len(args)))
	}
	if len(wheres) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(wheres, " AND "), args
}

func (s *Store) ListRequests(ctx context.Context, f RequestFilter) ([]models.ServiceRequest, int, error) {
	where, args := buildRequestWhere(f)

	var total int
	if err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM service_requests r`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + requestColumns + ` ` + requestFrom + where + ` ORDER BY r.submitted_at DESC, r.id ASC`
	if f.Limit > 0 {
		offset := f.Offset
		if offset < 0 {
			offset = 0
		}
		query += " LIMIT $" + fmt.Sprint(len(args)+1) + " OFFSET $" + fmt.Sprint(len(args)+2)
		args = append(args, f.Limit, offset)
	}

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.ServiceRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

func (s *Store) SwapRequest(ctx context.Context, next models.ServiceRequest, expected models.Status, ev *models.RequestEvent) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE service_requests SET
				status = $3, assigned_team = $4, assigned_collaborator = $5, assigned_manager_id = $6,
				assigned_manager = $7, assigned_manager_area = $8, scheduled_date = $9,
				scheduled_description = $10, observations = $11, available_dates = $12,
				urgent_reason = $13, refusal_reason = $14, refusal_date = $15,
				delegation_reason = $16, rejection_reason = $17, alerted_tier = $18, updated_at = $19,
				version = version + 1
			WHERE id = $1 AND status = $2 AND version = $20
		`, next.ID, string(expected), string(next.Status), next.AssignedTeam, next.AssignedCollaborator,
			next.AssignedManagerID, next.AssignedManager, string(next.AssignedManagerArea), next.ScheduledDate,
			next.ScheduledDescription, next.Observations, nonNil(next.AvailableDates),
			next.UrgentReason, next.RefusalReason, next.RefusalDate,
			next.DelegationReason, next.RejectionReason, tierOrNormal(next.AlertedTier), next.UpdatedAt,
			next.Version)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM service_requests WHERE id = $1)`, next.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConflict
		}
		if ev == nil {
			return nil
		}
		return insertEvent(ctx, tx, *ev)
	})
}

func insertEvent(ctx context.Context, tx pgx.Tx, ev models.RequestEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO request_events (id, request_id, from_status, to_status, actor_role, actor_id, note, at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, ev.ID, ev.RequestID, string(ev.From), string(ev.To), string(ev.ActorRole), ev.ActorID, ev.Note, ev.At)
	return err
}

func (s *Store) ListEvents(ctx context.Context, requestID string) ([]models.RequestEvent, error) {
	var exists bool
	if err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM service_requests WHERE id = $1)`, requestID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := s.Pool.Query(ctx, `
		SELECT id, request_id, from_status, to_status, actor_role, actor_id, note, at
		FROM request_events WHERE request_id = $1 ORDER BY seq ASC
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RequestEvent
	for rows.Next() {
		var (
			ev             models.RequestEvent
			from, to, role string
		)
		if err := rows.Scan(&ev.ID, &ev.RequestID, &from, &to, &role, &ev.ActorID, &ev.Note, &ev.At); err != nil {
			return nil, err
		}
		ev.From = models.Status(from)
		ev.To = models.Status(to)
		ev.ActorRole = models.Role(role)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// lockSubResource takes a transaction-scoped advisory lock so that writers of
// one sub-resource of one request run one at a time.
func lockSubResource(ctx context.Context, tx pgx.Tx, kind, requestID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, kind+":"+requestID); err != nil {
		return err
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM service_requests WHERE id = $1)`, requestID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (s *Store) MutateInvoice(ctx context.Context, requestID string, fn InvoiceMutation) (*models.Invoice, error) {
	var result *models.Invoice
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockSubResource(ctx, tx, "invoice", requestID); err != nil {
			return err
		}

		var cur *models.Invoice
		var inv models.Invoice
		err := tx.QueryRow(ctx, `
			SELECT number, amount::float8, issue_date, available_to_client FROM invoices WHERE request_id = $1
		`, requestID).Scan(&inv.Number, &inv.Amount, &inv.IssueDate, &inv.AvailableToClient)
		switch {
		case err == nil:
			cur = &inv
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return err
		}

		next, err := fn(cur)
		if err != nil {
			return err
		}
		if next == nil {
			_, err := tx.Exec(ctx, `DELETE FROM invoices WHERE request_id = $1`, requestID)
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO invoices (request_id, number, amount, issue_date, available_to_client)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (request_id) DO UPDATE SET
				number = EXCLUDED.number,
				amount = EXCLUDED.amount,
				issue_date = EXCLUDED.issue_date,
				available_to_client = EXCLUDED.available_to_client
		`, requestID, next.Number, next.Amount, next.IssueDate, next.AvailableToClient)
		if err != nil {
			return err
		}
		out := *next
		result = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) MutatePhotos(ctx context.Context, requestID string, fn PhotoMutation) (*models.PhotoDocumentation, error) {
	var result *models.PhotoDocumentation
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockSubResource(ctx, tx, "photos", requestID); err != nil {
			return err
		}

		var cur *models.PhotoDocumentation
		var pd models.PhotoDocumentation
		err := tx.QueryRow(ctx, `
			SELECT before_photos, after_photos, upload_date, uploaded_by FROM photo_documentation WHERE request_id = $1
		`, requestID).Scan(&pd.BeforePhotos, &pd.AfterPhotos, &pd.UploadDate, &pd.UploadedBy)
		switch {
		case err == nil:
			pd.BeforePhotos = nonNil(pd.BeforePhotos)
			pd.AfterPhotos = nonNil(pd.AfterPhotos)
			cur = &pd
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return err
		}

		next, err := fn(cur)
		if err != nil {
			return err
		}
		if next == nil {
			result = cur
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO photo_documentation (request_id, before_photos, after_photos, upload_date, uploaded_by)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (request_id) DO UPDATE SET
				before_photos = EXCLUDED.before_photos,
				after_photos = EXCLUDED.after_photos,
				upload_date = EXCLUDED.upload_date,
				uploaded_by = EXCLUDED.uploaded_by
		`, requestID, nonNil(next.BeforePhotos), nonNil(next.AfterPhotos), next.UploadDate, next.UploadedBy)
		if err != nil {
			return err
		}
		out := next.Clone()
		result = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpsertRoster(ctx context.Context, managers []models.Manager, teams []models.Team) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		for _, m := range managers {
			_, err := tx.Exec(ctx, `
				INSERT INTO managers (id, name, email, areas, active)
				VALUES ($1,$2,$3,$4,$5)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name,
					email = EXCLUDED.email,
					areas = EXCLUDED.areas,
					active = EXCLUDED.active
			`, m.ID, m.Name, m.Email, areaStrings(m.Areas), m.Active)
			if err != nil {
				return err
			}
		}
		for _, t := range teams {
			_, err := tx.Exec(ctx, `
				INSERT INTO teams (id, name, manager_id, area, members, active)
				VALUES ($1,$2,$3,$4,$5,$6)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name,
					manager_id = EXCLUDED.manager_id,
					area = EXCLUDED.area,
					members = EXCLUDED.members,
					active = EXCLUDED.active
			`, t.ID, t.Name, t.ManagerID, string(t.Area), nonNil(t.Members), t.Active)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func scanManager(row pgx.Row) (models.Manager, error) {
	var (
		m     models.Manager
		areas []string
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &areas, &m.Active); err != nil {
		return models.Manager{}, err
	}
	for _, a := range areas {
		m.Areas = append(m.Areas, models.Area(a))
	}
	return m, nil
}

func (s *Store) GetManager(ctx context.Context, id string) (models.Manager, error) {
	m, err := scanManager(s.Pool.QueryRow(ctx, `SELECT id, name, email, areas, active FROM managers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Manager{}, ErrNotFound
		}
		return models.Manager{}, err
	}
	return m, nil
}

func (s *Store) ListManagers(ctx context.Context, area models.Area) ([]models.Manager, error) {
	query := `SELECT id, name, email, areas, active FROM managers`
	var args []any
	if area != "" {
		args = append(args, string(area))
		query += fmt.Sprintf(" WHERE $%d = ANY(areas)", len(args))
	}
	query += " ORDER BY id ASC"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Manager
	for rows.Next() {
		m, err := scanManager(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ListTeams(ctx context.Context, managerID string) ([]models.Team, error) {
	query := `SELECT id, name, manager_id, area, members, active FROM teams`
	var args []any
	if managerID != "" {
		args = append(args, managerID)
		query += fmt.Sprintf(" WHERE manager_id = $%d", len(args))
	}
	query += " ORDER BY id ASC"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Team
	for rows.Next() {
		var (
			t    models.Team
			area string
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.ManagerID, &area, &t.Members, &t.Active); err != nil {
			return nil, err
		}
		t.Area = models.Area(area)
		t.Members = nonNil(t.Members)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ManagerLoads(ctx context.Context) (map[string]int, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT assigned_manager_id, COUNT(*)
		FROM service_requests
		WHERE assigned_manager_id <> '' AND status NOT IN ('completed', 'rejected')
		GROUP BY assigned_manager_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loads := map[string]int{}
	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		loads[id] = count
	}
	return loads, rows.Err()
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func areaStrings(areas []models.Area) []string {
	out := make([]string, 0, len(areas))
	for _, a := range areas {
		out = append(out, string(a))
	}
	return out
}

func tierOrNormal(t models.Tier) string {
	if t == "" {
		return string(models.TierNormal)
	}
	return string(t)
}

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/counselcare/counselbook/libs/db"
	"github.com/counselcare/counselbook/services/directory-service/internal/schedule"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

type Consultant struct {
	ID           string
	Name         string
	Specialty    string
	Bio          string
	SessionMins  int
	SlotStepMins int
	IsActive     bool
	CreatedAt    time.Time
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (r *Repository) CreateConsultant(ctx context.Context, name, specialty, bio string, sessionMins, slotStepMins int) (string, error) {
	if sessionMins <= 0 {
		sessionMins = 60
	}
	if slotStepMins <= 0 {
		slotStepMins = 15
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id := uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO consultants (id, name, specialty, bio, session_mins, slot_step_mins, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
	`, id, name, specialty, bio, sessionMins, slotStepMins)
	if err != nil {
		return "", err
	}

	// Default template: Mon-Fri 09:00-17:00, weekend closed.
	for wd := 0; wd <= 6; wd++ {
		isWorking := wd >= 1 && wd <= 5
		startMin, endMin := 540, 1020
		if !isWorking {
			startMin, endMin = 0, 0
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO consultant_weekly_hours (consultant_id, weekday, is_working, start_minute, end_minute)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (consultant_id, weekday) DO NOTHING
		`, id, wd, isWorking, startMin, endMin); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) GetConsultant(ctx context.Context, id string) (Consultant, error) {
	var c Consultant
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, specialty, COALESCE(bio, ''), session_mins, slot_step_mins, is_active, created_at
		FROM consultants
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Specialty, &c.Bio, &c.SessionMins, &c.SlotStepMins, &c.IsActive, &c.CreatedAt)
	return c, err
}

func (r *Repository) ListConsultants(ctx context.Context, specialty string, limit int) ([]Consultant, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, specialty, COALESCE(bio, ''), session_mins, slot_step_mins, is_active, created_at
		FROM consultants
		WHERE is_active
			AND ($1 = '' OR specialty = $1)
		ORDER BY name ASC
		LIMIT $2
	`, specialty, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Consultant
	for rows.Next() {
		var c Consultant
		if err := rows.Scan(&c.ID, &c.Name, &c.Specialty, &c.Bio, &c.SessionMins, &c.SlotStepMins, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) GetWeeklyHours(ctx context.Context, consultantID string, weekday int) (schedule.WeeklyHours, error) {
	var wh schedule.WeeklyHours
	err := r.pool.QueryRow(ctx, `
		SELECT weekday, is_working, start_minute, end_minute
		FROM consultant_weekly_hours
		WHERE consultant_id = $1 AND weekday = $2
	`, consultantID, weekday).Scan(&wh.Weekday, &wh.IsWorking, &wh.StartMinute, &wh.EndMinute)
	if errors.Is(err, pgx.ErrNoRows) {
		// Unseeded schedule falls back to the default template.
		return schedule.WeeklyHours{
			Weekday:     weekday,
			IsWorking:   weekday >= 1 && weekday <= 5,
			StartMinute: 540,
			EndMinute:   1020,
		}, nil
	}
	return wh, err
}

func (r *Repository) UpsertWeeklyHours(ctx context.Context, consultantID string, wh schedule.WeeklyHours) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM consultants WHERE id = $1)
	`, consultantID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO consultant_weekly_hours (consultant_id, weekday, is_working, start_minute, end_minute)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (consultant_id, weekday) DO UPDATE
		SET is_working = EXCLUDED.is_working,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute
	`, consultantID, wh.Weekday, wh.IsWorking, wh.StartMinute, wh.EndMinute)
	return err
}

type Blackout struct {
	ID           string
	ConsultantID string
	StartTime    time.Time
	EndTime      time.Time
	Reason       string
	CreatedAt    time.Time
}

func (r *Repository) CreateBlackout(ctx context.Context, consultantID string, start, end time.Time, reason string) (string, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM consultants WHERE id = $1)
	`, consultantID).Scan(&exists); err != nil {
		return "", err
	}
	if !exists {
		return "", pgx.ErrNoRows
	}

	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO consultant_blackouts (id, consultant_id, start_time, end_time, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, id, consultantID, start, end, reason)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListBlackouts(ctx context.Context, consultantID string, from, to time.Time) ([]Blackout, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, consultant_id::text, start_time, end_time, COALESCE(reason, ''), created_at
		FROM consultant_blackouts
		WHERE consultant_id = $1
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, consultantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Blackout
	for rows.Next() {
		var b Blackout
		if err := rows.Scan(&b.ID, &b.ConsultantID, &b.StartTime, &b.EndTime, &b.Reason, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

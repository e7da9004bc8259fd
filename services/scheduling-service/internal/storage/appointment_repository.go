package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/counselcare/counselbook/libs/db"
	"github.com/counselcare/counselbook/services/scheduling-service/internal/appointment"
	"github.com/counselcare/counselbook/services/scheduling-service/internal/booking"
	"github.com/counselcare/counselbook/services/scheduling-service/internal/outbox"
)

// AppointmentRepository implements booking.Store on Postgres. The
// appointments table carries an exclusion constraint over
// (consultant_id, session interval) for blocking rows, so a double booking
// that slips past the coordinator's in-process lock fails here with 23P01.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, ob *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: ob}
}

const appointmentColumns = `
	id, consultant_id, client_id, COALESCE(client_email, ''),
	COALESCE(idempotency_key, ''),
	start_time, duration_mins, modality, status,
	COALESCE(meeting_link, ''), COALESCE(location, ''),
	COALESCE(client_notes, ''), COALESCE(consultant_notes, ''),
	review_rating, COALESCE(review_comment, ''), review_submitted_at,
	COALESCE(cancellation_reason, ''), COALESCE(cancelled_by, ''),
	COALESCE(rescheduled_to::text, ''),
	created_at, updated_at`

func (r *AppointmentRepository) Create(ctx context.Context, a *appointment.Appointment, events []outbox.Event) error {
	return r.inTx(ctx, events, func(tx pgx.Tx) error {
		return mapWriteErr(r.insert(ctx, tx, a))
	})
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (*appointment.Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrAppointmentNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *AppointmentRepository) FindByIdempotencyKey(ctx context.Context, clientID, key string) (*appointment.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE client_id = $1 AND idempotency_key = $2
	`, clientID, key)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrAppointmentNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *AppointmentRepository) Update(ctx context.Context, a *appointment.Appointment, events []outbox.Event) error {
	return r.inTx(ctx, events, func(tx pgx.Tx) error {
		return mapWriteErr(r.update(ctx, tx, a))
	})
}

func (r *AppointmentRepository) Replace(ctx context.Context, old, replacement *appointment.Appointment, events []outbox.Event) error {
	return r.inTx(ctx, events, func(tx pgx.Tx) error {
		if err := r.update(ctx, tx, old); err != nil {
			return mapWriteErr(err)
		}
		return mapWriteErr(r.insert(ctx, tx, replacement))
	})
}

func (r *AppointmentRepository) ListBlocking(ctx context.Context, consultantID string, from, to time.Time) ([]appointment.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE consultant_id = $1
			AND status IN ('PENDING', 'CONFIRMED')
			AND start_time < $3
			AND start_time + make_interval(mins => duration_mins) > $2
		ORDER BY start_time ASC
	`, consultantID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) ListByClient(ctx context.Context, clientID string) ([]appointment.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE client_id = $1
		ORDER BY start_time DESC
	`, clientID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) ListByConsultant(ctx context.Context, consultantID string) ([]appointment.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE consultant_id = $1
		ORDER BY start_time DESC
	`, consultantID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// inTx runs fn and the outbox inserts in one transaction.
func (r *AppointmentRepository) inTx(ctx context.Context, events []outbox.Event, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	for _, evt := range events {
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *AppointmentRepository) insert(ctx context.Context, tx pgx.Tx, a *appointment.Appointment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, consultant_id, client_id, client_email, idempotency_key, start_time, duration_mins, modality, status,
			meeting_link, location, client_notes, consultant_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, a.ID, a.ConsultantID, a.ClientID, a.ClientEmail, a.IdempotencyKey, a.Start, a.DurationMins, a.Modality, a.Status,
		a.MeetingLink, a.Location, a.ClientNotes, a.ConsultantNotes, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *AppointmentRepository) update(ctx context.Context, tx pgx.Tx, a *appointment.Appointment) error {
	var rating *int
	var comment string
	var submittedAt *time.Time
	if a.Review != nil {
		rating = &a.Review.Rating
		comment = a.Review.Comment
		submittedAt = &a.Review.SubmittedAt
	}
	var rescheduledTo *string
	if a.RescheduledTo != "" {
		rescheduledTo = &a.RescheduledTo
	}
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			meeting_link = $3,
			location = $4,
			consultant_notes = $5,
			review_rating = $6,
			review_comment = $7,
			review_submitted_at = $8,
			cancellation_reason = $9,
			cancelled_by = $10,
			rescheduled_to = $11,
			updated_at = $12
		WHERE id = $1
	`, a.ID, a.Status, a.MeetingLink, a.Location, a.ConsultantNotes,
		rating, comment, submittedAt,
		a.CancellationReason, a.CancelledBy, rescheduledTo, a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrAppointmentNotFound
	}
	return nil
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23P01":
			return booking.ErrSlotNoLongerAvailable
		case pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "idempotency"):
			return booking.ErrDuplicateRequest
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*appointment.Appointment, error) {
	var a appointment.Appointment
	var rating *int
	var comment string
	var submittedAt *time.Time
	if err := row.Scan(
		&a.ID,
		&a.ConsultantID,
		&a.ClientID,
		&a.ClientEmail,
		&a.IdempotencyKey,
		&a.Start,
		&a.DurationMins,
		&a.Modality,
		&a.Status,
		&a.MeetingLink,
		&a.Location,
		&a.ClientNotes,
		&a.ConsultantNotes,
		&rating,
		&comment,
		&submittedAt,
		&a.CancellationReason,
		&a.CancelledBy,
		&a.RescheduledTo,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if rating != nil {
		a.Review = &appointment.Review{Rating: *rating, Comment: comment}
		if submittedAt != nil {
			a.Review.SubmittedAt = *submittedAt
		}
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]appointment.Appointment, error) {
	defer rows.Close()
	var appts []appointment.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, *a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

var _ booking.Store = (*AppointmentRepository)(nil)

// ReadyCheck verifies the schema is reachable.
func (r *AppointmentRepository) ReadyCheck(ctx context.Context) error {
	var one int
	if err := r.pool.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("appointments storage: %w", err)
	}
	return nil
}

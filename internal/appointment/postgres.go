package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxDB is a DB that can open transactions (pgxpool.Pool, pgxmock pool).
type TxDB interface {
	DB
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

const (
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
	pgExclusionViolation   = "23P01"
)

const selectAppointmentColumns = `
	SELECT id, practice_id, patient_name, patient_phone, start_at, duration_minutes, reason, status,
		reminder_sent, source, calendar_event_id, slot_key, created_at, updated_at
	FROM appointments`

// PostgresRepository stores appointments in Postgres. The schema carries a
// partial unique index on slot_key and an exclusion constraint on the booked
// range so concurrent writers cannot double-book.
type PostgresRepository struct {
	db   DB
	pool TxDB
}

// NewPostgresRepository creates a repository on a transaction-capable pool.
func NewPostgresRepository(pool TxDB) *PostgresRepository {
	return &PostgresRepository{db: pool, pool: pool}
}

func (r *PostgresRepository) ListActiveBetween(ctx context.Context, practiceID string, from, to time.Time) ([]*Appointment, error) {
	rows, err := r.db.Query(ctx, selectAppointmentColumns+`
	WHERE practice_id = $1 AND status IN ('scheduled', 'confirmed') AND start_at >= $2 AND start_at < $3
	ORDER BY start_at ASC`, practiceID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("appointment: list active: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (r *PostgresRepository) Insert(ctx context.Context, appt *Appointment) error {
	if appt == nil {
		return errors.New("appointment: insert: nil appointment")
	}
	prepareInsert(appt, time.Now().UTC())

	var id uuid.UUID
	err := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, practice_id, patient_name, patient_phone, start_at, end_at, duration_minutes,
			reason, status, reminder_sent, source, calendar_event_id, slot_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (slot_key) WHERE status IN ('scheduled', 'confirmed') DO NOTHING
		RETURNING id`,
		appt.ID, appt.PracticeID, appt.PatientName, appt.PatientPhone, appt.Start.UTC(), appt.End().UTC(),
		appt.DurationMinutes, appt.Reason, string(appt.Status), appt.ReminderSent, string(appt.Source),
		appt.CalendarEventID, appt.SlotKey, appt.CreatedAt, appt.UpdatedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSlotTaken
	}
	if err != nil {
		return fmt.Errorf("appointment: insert: %w", mapConflict(err))
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, practiceID string, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, selectAppointmentColumns+` WHERE practice_id = $1 AND id = $2`, practiceID, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointment: get: %w", err)
	}
	return appt, nil
}

func (r *PostgresRepository) FindNextByPhone(ctx context.Context, practiceID, phone string, statuses []Status, after time.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, selectAppointmentColumns+`
	WHERE practice_id = $1 AND patient_phone = $2 AND status = ANY($3) AND start_at >= $4
	ORDER BY start_at ASC
	LIMIT 1`, practiceID, phone, statusStrings(statuses), after.UTC())
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointment: find next by phone: %w", err)
	}
	return appt, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, practiceID string, id uuid.UUID, from []Status, to Status) error {
	allowed := allowedFrom(from, to)
	if len(allowed) == 0 {
		return ErrInvalidTransition
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments SET status = $1, updated_at = $2
		WHERE practice_id = $3 AND id = $4 AND status = ANY($5)`,
		string(to), time.Now().UTC(), practiceID, id, statusStrings(allowed))
	if err != nil {
		return fmt.Errorf("appointment: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ListDueForReminder(ctx context.Context, practiceID string, from, to time.Time) ([]*Appointment, error) {
	rows, err := r.db.Query(ctx, selectAppointmentColumns+`
	WHERE practice_id = $1 AND status IN ('scheduled', 'confirmed') AND reminder_sent = FALSE
		AND start_at >= $2 AND start_at < $3
	ORDER BY start_at ASC`, practiceID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("appointment: list due for reminder: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (r *PostgresRepository) MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments SET reminder_sent = TRUE, updated_at = $1
		WHERE id = $2 AND reminder_sent = FALSE`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("appointment: mark reminder sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments SET calendar_event_id = $1, updated_at = $2
		WHERE id = $3`, eventID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("appointment: set calendar event id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Transact runs fn inside a SERIALIZABLE transaction. Serialization failures
// and constraint conflicts surface as ErrSlotTaken.
func (r *PostgresRepository) Transact(ctx context.Context, fn func(Repository) error) error {
	if r.pool == nil {
		// Already inside a transaction.
		return fn(r)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("appointment: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&PostgresRepository{db: tx}); err != nil {
		return mapConflict(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("appointment: commit: %w", mapConflict(err))
	}
	return nil
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgUniqueViolation, pgExclusionViolation:
			return fmt.Errorf("%w: %s", ErrSlotTaken, pgErr.Message)
		}
	}
	return err
}

func scanAppointments(rows pgx.Rows) ([]*Appointment, error) {
	var out []*Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointment: scan: %w", err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointment: rows: %w", err)
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		status string
		source string
	)
	if err := row.Scan(&a.ID, &a.PracticeID, &a.PatientName, &a.PatientPhone, &a.Start, &a.DurationMinutes,
		&a.Reason, &status, &a.ReminderSent, &source, &a.CalendarEventID, &a.SlotKey, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.Source = Source(source)
	return &a, nil
}

package practice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectPracticeColumns = `
	SELECT id, name, specialty, phone, address, email, active, google_locations, calendar, whatsapp, created_at, updated_at
	FROM practices`

// PostgresStore persists practices with calendar and messaging settings in JSONB columns.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a Postgres-backed practice repository.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Practice, error) {
	row := s.db.QueryRow(ctx, selectPracticeColumns+` WHERE id = $1`, id)
	p, err := scanPractice(row)
	if err != nil {
		return nil, fmt.Errorf("practice: get %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) FindByWhatsAppNumber(ctx context.Context, e164 string) (*Practice, error) {
	row := s.db.QueryRow(ctx, selectPracticeColumns+`
	WHERE whatsapp->>'phone_number' = $1
	ORDER BY active DESC, id ASC
	LIMIT 1`, e164)
	p, err := scanPractice(row)
	if err != nil {
		return nil, fmt.Errorf("practice: find by whatsapp number: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) FindByGoogleLocation(ctx context.Context, locationName string) (*Practice, error) {
	row := s.db.QueryRow(ctx, selectPracticeColumns+`
	WHERE $1 = ANY(google_locations)
	ORDER BY active DESC, id ASC
	LIMIT 1`, locationName)
	p, err := scanPractice(row)
	if err != nil {
		return nil, fmt.Errorf("practice: find by google location: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*Practice, error) {
	rows, err := s.db.Query(ctx, selectPracticeColumns+` WHERE active ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("practice: list active: %w", err)
	}
	defer rows.Close()

	var out []*Practice
	for rows.Next() {
		p, err := scanPractice(rows)
		if err != nil {
			return nil, fmt.Errorf("practice: list active: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("practice: list active: %w", err)
	}
	return out, nil
}

// Save upserts a practice.
func (s *PostgresStore) Save(ctx context.Context, p *Practice) error {
	if p == nil {
		return errors.New("practice: save: nil practice")
	}
	if p.Calendar != nil {
		if err := p.Calendar.Validate(); err != nil {
			return fmt.Errorf("practice: save %s: %w", p.ID, err)
		}
	}
	var calendarJSON []byte
	if p.Calendar != nil {
		data, err := json.Marshal(p.Calendar)
		if err != nil {
			return fmt.Errorf("practice: marshal calendar: %w", err)
		}
		calendarJSON = data
	}
	whatsappJSON, err := json.Marshal(p.WhatsApp)
	if err != nil {
		return fmt.Errorf("practice: marshal whatsapp: %w", err)
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err = s.db.Exec(ctx, `
		INSERT INTO practices (id, name, specialty, phone, address, email, active, google_locations, calendar, whatsapp, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			specialty = EXCLUDED.specialty,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			email = EXCLUDED.email,
			active = EXCLUDED.active,
			google_locations = EXCLUDED.google_locations,
			calendar = EXCLUDED.calendar,
			whatsapp = EXCLUDED.whatsapp,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, p.Specialty, p.Phone, p.Address, p.Email, p.Active,
		pq.Array(p.GoogleLocations), calendarJSON, whatsappJSON, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("practice: save %s: %w", p.ID, err)
	}
	return nil
}

func scanPractice(row pgx.Row) (*Practice, error) {
	var (
		p            Practice
		locations    pq.StringArray
		calendarJSON []byte
		whatsappJSON []byte
	)
	err := row.Scan(&p.ID, &p.Name, &p.Specialty, &p.Phone, &p.Address, &p.Email, &p.Active,
		&locations, &calendarJSON, &whatsappJSON, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.GoogleLocations = []string(locations)
	if len(calendarJSON) > 0 && string(calendarJSON) != "null" {
		var cal CalendarConfig
		if err := json.Unmarshal(calendarJSON, &cal); err != nil {
			return nil, fmt.Errorf("decode calendar: %w", err)
		}
		p.Calendar = &cal
	}
	if len(whatsappJSON) > 0 {
		if err := json.Unmarshal(whatsappJSON, &p.WhatsApp); err != nil {
			return nil, fmt.Errorf("decode whatsapp: %w", err)
		}
	}
	return &p, nil
}

package doctor

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/triage/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const doctorCols = `id, full_name, specialty, experience_years, available,
	shift_start, shift_end, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.FullName, &p.Specialty, &p.ExperienceYears, &p.Available,
		&p.ShiftStart, &p.ShiftEnd, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDoctorNotFound
	}
	return &p, err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return scanProfile(r.conn(ctx).QueryRow(ctx,
		`SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
}

func (r *repoPG) Create(ctx context.Context, p *Profile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor (id, full_name, specialty, experience_years, available, shift_start, shift_end)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.FullName, p.Specialty, p.ExperienceYears, p.Available, p.ShiftStart, p.ShiftEnd)
	return err
}

func (r *repoPG) SetAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE doctor SET available = $2, updated_at = NOW() WHERE id = $1`, id, available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Profile, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+doctorCols+` FROM doctor ORDER BY full_name ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Candidates(ctx context.Context, specialty string) ([]*Candidate, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT d.id, d.full_name, d.specialty, d.experience_years, d.available,
			d.shift_start, d.shift_end, d.created_at, d.updated_at,
			COALESCE(l.active_count, 0) AS active_load
		FROM doctor d
		LEFT JOIN (
			SELECT doctor_id, COUNT(*) AS active_count
			FROM doctor_assignment
			WHERE active
			GROUP BY doctor_id
		) l ON l.doctor_id = d.id
		WHERE LOWER(d.specialty) = LOWER($1) AND d.available`,
		specialty)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Candidate
	for rows.Next() {
		var c Candidate
		err := rows.Scan(&c.ID, &c.FullName, &c.Specialty, &c.ExperienceYears, &c.Available,
			&c.ShiftStart, &c.ShiftEnd, &c.CreatedAt, &c.UpdatedAt, &c.ActiveLoad)
		if err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, rows.Err()
}

func (r *repoPG) PreferredDoctor(ctx context.Context, patientID uuid.UUID, specialty string) (*Profile, error) {
	return scanProfile(r.conn(ctx).QueryRow(ctx, `
		SELECT d.id, d.full_name, d.specialty, d.experience_years, d.available,
			d.shift_start, d.shift_end, d.created_at, d.updated_at
		FROM patient_preference p
		JOIN doctor d ON d.id = p.doctor_id
		WHERE p.patient_id = $1 AND LOWER(d.specialty) = LOWER($2) AND d.available
		ORDER BY p.last_used_at DESC
		LIMIT 1`,
		patientID, specialty))
}

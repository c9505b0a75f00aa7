package visit

import (
	"context"
	"errors"
	"time"

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

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const visitCols = `id, patient_id, visit_type, status, emergency,
	arrived_at, completed_at, created_at, updated_at`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.PatientID, &v.Type, &v.Status, &v.Emergency,
		&v.ArrivedAt, &v.CompletedAt, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVisitNotFound
	}
	return &v, err
}

func (r *repoPG) Create(ctx context.Context, v *Visit) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO visit (id, patient_id, visit_type, status, emergency, arrived_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		v.ID, v.PatientID, v.Type, v.Status, v.Emergency, v.ArrivedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return scanVisit(r.conn(ctx).QueryRow(ctx,
		`SELECT `+visitCols+` FROM visit WHERE id = $1`, id))
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, completedAt *time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit SET status = $2, completed_at = $3, updated_at = now()
		WHERE id = $1`,
		id, status, completedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVisitNotFound
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM visit WHERE patient_id = $1`, patientID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM visit
		 WHERE patient_id = $1 ORDER BY arrived_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

func (r *repoPG) CreateAssignment(ctx context.Context, a *Assignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_assignment (id, visit_id, doctor_id, active)
		VALUES ($1,$2,$3,$4)`,
		a.ID, a.VisitID, a.DoctorID, a.Active)
	return err
}

func (r *repoPG) ActiveAssignment(ctx context.Context, visitID uuid.UUID) (*Assignment, error) {
	var a Assignment
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, visit_id, doctor_id, active, created_at, updated_at
		FROM doctor_assignment WHERE visit_id = $1 AND active`, visitID).
		Scan(&a.ID, &a.VisitID, &a.DoctorID, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAssignmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) DeactivateAssignment(ctx context.Context, visitID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor_assignment SET active = false, updated_at = now()
		WHERE visit_id = $1 AND active`, visitID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

func (r *repoPG) UpsertPreference(ctx context.Context, patientID, doctorID uuid.UUID, usedAt time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_preference (id, patient_id, doctor_id, last_used_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (patient_id, doctor_id)
		DO UPDATE SET last_used_at = EXCLUDED.last_used_at`,
		uuid.New(), patientID, doctorID, usedAt)
	return err
}

func (r *repoPG) AppendEvent(ctx context.Context, e *Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO event_log (id, visit_id, event_type, detail)
		VALUES ($1,$2,$3,$4)`,
		e.ID, e.VisitID, e.Type, e.Detail)
	return err
}

func (r *repoPG) CreateAlert(ctx context.Context, a *EmergencyAlert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO emergency_alert (id, visit_id, risk_level, message)
		VALUES ($1,$2,$3,$4)`,
		a.ID, a.VisitID, a.RiskLevel, a.Message)
	return err
}

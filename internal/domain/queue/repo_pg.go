package queue

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

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const entryCols = `id, visit_id, doctor_id, static_score, wait_boost, dynamic_score,
	position, emergency, scored_at, enqueued_at, updated_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.VisitID, &e.DoctorID, &e.StaticScore, &e.WaitBoost, &e.DynamicScore,
		&e.Position, &e.Emergency, &e.ScoredAt, &e.EnqueuedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	return &e, err
}

func (r *repoPG) GetByVisit(ctx context.Context, visitID uuid.UUID) (*Entry, error) {
	return scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entry WHERE visit_id = $1`, visitID))
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+entryCols+` FROM queue_entry WHERE doctor_id = $1 ORDER BY position ASC`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *repoPG) Insert(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO queue_entry (id, visit_id, doctor_id, static_score, wait_boost,
			dynamic_score, position, emergency, scored_at, enqueued_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.VisitID, e.DoctorID, e.StaticScore, e.WaitBoost,
		e.DynamicScore, e.Position, e.Emergency, e.ScoredAt, e.EnqueuedAt)
	return err
}

func (r *repoPG) Delete(ctx context.Context, visitID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM queue_entry WHERE visit_id = $1`, visitID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *repoPG) MaxPosition(ctx context.Context, doctorID uuid.UUID) (int, error) {
	var max int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM queue_entry WHERE doctor_id = $1`, doctorID).Scan(&max)
	return max, err
}

func (r *repoPG) ShiftPositions(ctx context.Context, doctorID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE queue_entry SET position = position + 1, updated_at = NOW() WHERE doctor_id = $1`, doctorID)
	return err
}

func (r *repoPG) UpdateOrdering(ctx context.Context, entries []*Entry) error {
	for _, e := range entries {
		_, err := r.conn(ctx).Exec(ctx, `
			UPDATE queue_entry
			SET position = $2, wait_boost = $3, dynamic_score = $4, updated_at = NOW()
			WHERE id = $1`,
			e.ID, e.Position, e.WaitBoost, e.DynamicScore)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) UpdateStaticScore(ctx context.Context, visitID uuid.UUID, score int, scoredAt time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE queue_entry
		SET static_score = $2, scored_at = $3, updated_at = NOW()
		WHERE visit_id = $1`,
		visitID, score, scoredAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *repoPG) DoctorsWithEntries(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT DISTINCT doctor_id FROM queue_entry`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

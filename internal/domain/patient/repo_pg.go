package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appealflow/appealflow/internal/platform/db"
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
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const patientCols = `id, first_name, last_name, date_of_birth, insurance, diagnoses, documents,
	created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p         Patient
		insurance []byte
		documents []byte
	)
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.DateOfBirth,
		&insurance, &p.Diagnoses, &documents, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(insurance) > 0 {
		if err := json.Unmarshal(insurance, &p.Insurance); err != nil {
			return nil, fmt.Errorf("decode insurance: %w", err)
		}
	}
	if len(documents) > 0 {
		if err := json.Unmarshal(documents, &p.Documents); err != nil {
			return nil, fmt.Errorf("decode documents: %w", err)
		}
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	insurance, err := json.Marshal(p.Insurance)
	if err != nil {
		return fmt.Errorf("encode insurance: %w", err)
	}
	documents, err := json.Marshal(p.Documents)
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, first_name, last_name, date_of_birth, insurance, diagnoses, documents)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, insurance, p.Diagnoses, documents)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	insurance, err := json.Marshal(p.Insurance)
	if err != nil {
		return fmt.Errorf("encode insurance: %w", err)
	}
	documents, err := json.Marshal(p.Documents)
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET first_name=$2, last_name=$3, date_of_birth=$4,
			insurance=$5, diagnoses=$6, documents=$7, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, insurance, p.Diagnoses, documents)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patients ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

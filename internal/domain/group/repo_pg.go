package group

import (
	"context"
	"errors"

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

const groupCols = `id, name, created_at, updated_at`

func scanGroup(row pgx.Row) (*Group, error) {
	var g Group
	err := row.Scan(&g.ID, &g.Name, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *repoPG) Create(ctx context.Context, g *Group) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO groups (id, name)
		VALUES ($1, $2)
		RETURNING created_at, updated_at`,
		g.ID, g.Name).Scan(&g.CreatedAt, &g.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Group, error) {
	return scanGroup(r.conn(ctx).QueryRow(ctx, `SELECT `+groupCols+` FROM groups WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Group, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM groups`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+groupCols+` FROM groups ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, g)
	}
	return items, total, rows.Err()
}

func (r *repoPG) AddMember(ctx context.Context, m *Member) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO group_members (group_id, user_id, permission)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_id, user_id) DO UPDATE SET permission = EXCLUDED.permission`,
		m.GroupID, m.UserID, m.Permission)
	return err
}

func (r *repoPG) RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	return err
}

func (r *repoPG) ListMembers(ctx context.Context, groupID uuid.UUID) ([]*Member, error) {
	return r.queryMembers(ctx, `
		SELECT group_id, user_id, permission, added_at
		FROM group_members WHERE group_id = $1 ORDER BY added_at`, groupID)
}

func (r *repoPG) ListEditors(ctx context.Context, groupID uuid.UUID) ([]*Member, error) {
	return r.queryMembers(ctx, `
		SELECT group_id, user_id, permission, added_at
		FROM group_members WHERE group_id = $1 AND permission IN ('edit', 'admin')
		ORDER BY added_at`, groupID)
}

func (r *repoPG) queryMembers(ctx context.Context, sql string, groupID uuid.UUID) ([]*Member, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Permission, &m.AddedAt); err != nil {
			return nil, err
		}
		items = append(items, &m)
	}
	return items, rows.Err()
}

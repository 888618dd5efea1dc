package resource

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-admin/meridian-admin/internal/platform/db"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for resource records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListNodes returns the flat snapshot of one kind ordered by id.
func (r *Repository) ListNodes(ctx context.Context, kind Kind) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, parent_id, name, status, sort_order, code FROM resource_nodes WHERE kind = $1 ORDER BY id`,
		string(kind))
	if err != nil {
		return nil, fmt.Errorf("resource: list nodes: %w", err)
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.ParentID, &rec.Name, &rec.Status, &rec.SortOrder, &rec.Code); err != nil {
			return nil, fmt.Errorf("resource: scan node: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resource: list nodes: %w", err)
	}
	return records, nil
}

// CountNodes returns how many records exist for one kind.
func (r *Repository) CountNodes(ctx context.Context, kind Kind) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM resource_nodes WHERE kind = $1`, string(kind)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("resource: count nodes: %w", err)
	}
	return count, nil
}

// CreateNode inserts a record and returns it with the generated id.
func (r *Repository) CreateNode(ctx context.Context, kind Kind, rec Record) (Record, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO resource_nodes (kind, parent_id, name, status, sort_order, code)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		string(kind), rec.ParentID, rec.Name, rec.Status, rec.SortOrder, rec.Code).Scan(&rec.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Record{}, fmt.Errorf("%w: %s", ErrDuplicate, rec.Name)
		}
		return Record{}, fmt.Errorf("resource: create node: %w", err)
	}
	return rec, nil
}

// UpdateNode rewrites the mutable fields of a record.
func (r *Repository) UpdateNode(ctx context.Context, kind Kind, rec Record) (Record, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE resource_nodes SET parent_id = $3, name = $4, status = $5, sort_order = $6, code = $7
		 WHERE kind = $1 AND id = $2`,
		string(kind), rec.ID, rec.ParentID, rec.Name, rec.Status, rec.SortOrder, rec.Code)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Record{}, fmt.Errorf("%w: %s", ErrDuplicate, rec.Name)
		}
		return Record{}, fmt.Errorf("resource: update node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Record{}, fmt.Errorf("%w: node %d", ErrNotFound, rec.ID)
	}
	return rec, nil
}

// DeleteNode removes a childless record and its grant rows in one
// transaction. Deleting a node that still has children is rejected so the
// stored hierarchy never orphans a subtree.
func (r *Repository) DeleteNode(ctx context.Context, kind Kind, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var children int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM resource_nodes WHERE kind = $1 AND parent_id = $2`,
			string(kind), id).Scan(&children); err != nil {
			return fmt.Errorf("resource: count children: %w", err)
		}
		if children > 0 {
			return fmt.Errorf("%w: node %d", ErrHasChildren, id)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM role_grants WHERE kind = $1 AND resource_id = $2`,
			string(kind), id); err != nil {
			return fmt.Errorf("resource: delete grants: %w", err)
		}
		tag, err := tx.Exec(ctx,
			`DELETE FROM resource_nodes WHERE kind = $1 AND id = $2`, string(kind), id)
		if err != nil {
			return fmt.Errorf("resource: delete node: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: node %d", ErrNotFound, id)
		}
		return nil
	})
}

package entity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thmr/registry/internal/platform/db"
)

// PGStore keeps records in PostgreSQL, one table per entity.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, s.pool)
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PGStore) Commit(ctx context.Context) error {
	return db.Commit(ctx)
}

func (s *PGStore) SelectAll(ctx context.Context, e *Entity) ([]interface{}, error) {
	rows, err := s.conn(ctx).Query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		selectList(e), table(e), pgx.Identifier{e.PK().Name}.Sanitize()))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", e.Name, err)
	}
	defer rows.Close()

	var recs []interface{}
	for rows.Next() {
		rec := e.New()
		if err := rows.Scan(scanTargets(e, rec)...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", e.Name, err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *PGStore) SelectByID(ctx context.Context, e *Entity, id int64) (interface{}, error) {
	rec := e.New()
	err := s.conn(ctx).QueryRow(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		selectList(e), table(e), pgx.Identifier{e.PK().Name}.Sanitize()), id).Scan(scanTargets(e, rec)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select %s %d: %w", e.Name, id, err)
	}
	return rec, nil
}

// Insert leaves generated columns to the table defaults and reads them back.
func (s *PGStore) Insert(ctx context.Context, e *Entity, rec interface{}) error {
	var cols, params []string
	var args []interface{}
	for _, c := range e.Columns {
		if c.Generated() {
			continue
		}
		args = append(args, e.field(rec, c).Interface())
		cols = append(cols, pgx.Identifier{c.Name}.Sanitize())
		params = append(params, fmt.Sprintf("$%d", len(args)))
	}

	var q string
	if len(cols) == 0 {
		q = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", table(e), selectList(e))
	} else {
		q = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			table(e), strings.Join(cols, ", "), strings.Join(params, ", "), selectList(e))
	}
	if err := s.conn(ctx).QueryRow(ctx, q, args...).Scan(scanTargets(e, rec)...); err != nil {
		return fmt.Errorf("insert %s: %w", e.Name, err)
	}
	return nil
}

func (s *PGStore) Update(ctx context.Context, e *Entity, rec interface{}, columns []string) error {
	var sets []string
	var args []interface{}
	for _, name := range columns {
		c, ok := e.Column(name)
		if !ok || c.Generated() {
			continue
		}
		args = append(args, e.field(rec, c).Interface())
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{c.Name}.Sanitize(), len(args)))
	}
	for _, c := range e.Columns {
		if c.Updated {
			sets = append(sets, pgx.Identifier{c.Name}.Sanitize()+" = NOW()")
		}
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, e.ID(rec))
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d RETURNING %s",
		table(e), strings.Join(sets, ", "), pgx.Identifier{e.PK().Name}.Sanitize(), len(args), selectList(e))
	if err := s.conn(ctx).QueryRow(ctx, q, args...).Scan(scanTargets(e, rec)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update %s %d: %w", e.Name, e.ID(rec), err)
	}
	return nil
}

func table(e *Entity) string {
	return pgx.Identifier{e.Table}.Sanitize()
}

func selectList(e *Entity) string {
	cols := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		cols[i] = pgx.Identifier{c.Name}.Sanitize()
	}
	return strings.Join(cols, ", ")
}

func scanTargets(e *Entity, rec interface{}) []interface{} {
	targets := make([]interface{}, len(e.Columns))
	for i, c := range e.Columns {
		targets[i] = e.field(rec, c).Addr().Interface()
	}
	return targets
}

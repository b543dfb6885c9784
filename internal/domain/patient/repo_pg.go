package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thmr/registry/internal/platform/db"
	"github.com/thmr/registry/internal/platform/entity"
)

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

const patientCols = `id, name, email, gender, phone1, phone2, address, created_at, updated_at`

func (r *patientRepoPG) scanRow(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Gender, &p.Phone1, &p.Phone2, &p.Address,
		&p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	p, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %d: %w", id, err)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET name=$2, email=$3, gender=$4, phone1=$5, address=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Name, p.Email, p.Gender, p.Phone1, p.Address,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update patient %d: %w", p.ID, err)
	}
	return nil
}

func (r *patientRepoPG) Search(ctx context.Context, params SearchParams) ([]*Patient, error) {
	query := `SELECT ` + patientCols + ` FROM patients WHERE 1=1`
	var args []interface{}
	like := func(value string, cols ...string) {
		if value == "" {
			return
		}
		args = append(args, "%"+escapeLike(value)+"%")
		conds := make([]string, len(cols))
		for i, col := range cols {
			conds[i] = fmt.Sprintf("%s ILIKE $%d", col, len(args))
		}
		query += " AND (" + strings.Join(conds, " OR ") + ")"
	}
	like(params.Name, "name")
	like(params.Email, "email")
	like(params.Gender, "gender")
	like(params.Phone, "phone1", "phone2")
	like(params.Address, "address")
	query += " ORDER BY name, id"

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *patientRepoPG) Commit(ctx context.Context) error {
	return db.Commit(ctx)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

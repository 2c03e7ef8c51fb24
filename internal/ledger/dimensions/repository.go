package dimensions

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// Repository encapsulates DB operations for dimensions and their values.
type Repository interface {
	CreateDimension(ctx context.Context, d ledger.Dimension) (ledger.Dimension, error)
	GetDimension(ctx context.Context, id int64) (ledger.Dimension, error)
	ListDimensions(ctx context.Context) ([]ledger.Dimension, error)
	ListRequiredDimensions(ctx context.Context) ([]ledger.Dimension, error)
	SetDimensionActive(ctx context.Context, id int64, active bool) error

	CreateValue(ctx context.Context, v ledger.DimensionValue) (ledger.DimensionValue, error)
	UpdateValue(ctx context.Context, v ledger.DimensionValue) error
	GetValue(ctx context.Context, id int64) (ledger.DimensionValue, error)
	GetValues(ctx context.Context, ids []int64) (map[int64]ledger.DimensionValue, error)
	ListValues(ctx context.Context, dimensionID int64) ([]ledger.DimensionValue, error)
	SetValueActive(ctx context.Context, id int64, active bool) error
	DeleteValue(ctx context.Context, id int64) error
	ValueHasAssignments(ctx context.Context, id int64) (bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const dimensionColumns = `id, code, name, scope, required, supports_hierarchy, is_active, created_at, updated_at`
const valueColumns = `id, dimension_id, code, name, parent_id, is_active, created_at, updated_at`

func scanDimension(row pgx.Row) (ledger.Dimension, error) {
	var d ledger.Dimension
	err := row.Scan(&d.ID, &d.Code, &d.Name, &d.Scope, &d.Required, &d.SupportsHierarchy, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func scanValue(row pgx.Row) (ledger.DimensionValue, error) {
	var v ledger.DimensionValue
	err := row.Scan(&v.ID, &v.DimensionID, &v.Code, &v.Name, &v.ParentID, &v.IsActive, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func (r *repository) CreateDimension(ctx context.Context, d ledger.Dimension) (ledger.Dimension, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO dimensions (code, name, scope, required, supports_hierarchy, is_active)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+dimensionColumns,
		d.Code, d.Name, d.Scope, d.Required, d.SupportsHierarchy, d.IsActive)
	created, err := scanDimension(row)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.Dimension{}, ledger.ErrCodeTaken
		}
		return ledger.Dimension{}, err
	}
	return created, nil
}

func (r *repository) GetDimension(ctx context.Context, id int64) (ledger.Dimension, error) {
	d, err := scanDimension(r.db.QueryRow(ctx, `SELECT `+dimensionColumns+` FROM dimensions WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Dimension{}, ledger.ErrDimensionNotFound
		}
		return ledger.Dimension{}, err
	}
	return d, nil
}

func (r *repository) ListDimensions(ctx context.Context) ([]ledger.Dimension, error) {
	return r.queryDimensions(ctx, `SELECT `+dimensionColumns+` FROM dimensions ORDER BY code`)
}

func (r *repository) ListRequiredDimensions(ctx context.Context) ([]ledger.Dimension, error) {
	return r.queryDimensions(ctx, `SELECT `+dimensionColumns+` FROM dimensions WHERE required AND is_active ORDER BY code`)
}

func (r *repository) queryDimensions(ctx context.Context, query string) ([]ledger.Dimension, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Dimension
	for rows.Next() {
		d, err := scanDimension(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repository) SetDimensionActive(ctx context.Context, id int64, active bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE dimensions SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.ErrDimensionNotFound
	}
	return nil
}

func (r *repository) CreateValue(ctx context.Context, v ledger.DimensionValue) (ledger.DimensionValue, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO dimension_values (dimension_id, code, name, parent_id, is_active)
VALUES ($1,$2,$3,$4,$5) RETURNING `+valueColumns,
		v.DimensionID, v.Code, v.Name, v.ParentID, v.IsActive)
	created, err := scanValue(row)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.DimensionValue{}, ledger.ErrCodeTaken
		}
		return ledger.DimensionValue{}, err
	}
	return created, nil
}

func (r *repository) UpdateValue(ctx context.Context, v ledger.DimensionValue) error {
	cmd, err := r.db.Exec(ctx, `UPDATE dimension_values SET code=$2, name=$3, parent_id=$4, updated_at=NOW() WHERE id=$1`,
		v.ID, v.Code, v.Name, v.ParentID)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrCodeTaken
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.ErrDimensionNotFound
	}
	return nil
}

func (r *repository) GetValue(ctx context.Context, id int64) (ledger.DimensionValue, error) {
	v, err := scanValue(r.db.QueryRow(ctx, `SELECT `+valueColumns+` FROM dimension_values WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.DimensionValue{}, ledger.ErrDimensionNotFound
		}
		return ledger.DimensionValue{}, err
	}
	return v, nil
}

func (r *repository) GetValues(ctx context.Context, ids []int64) (map[int64]ledger.DimensionValue, error) {
	out := make(map[int64]ledger.DimensionValue, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+valueColumns+` FROM dimension_values WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		v, err := scanValue(rows)
		if err != nil {
			return nil, err
		}
		out[v.ID] = v
	}
	return out, rows.Err()
}

func (r *repository) ListValues(ctx context.Context, dimensionID int64) ([]ledger.DimensionValue, error) {
	rows, err := r.db.Query(ctx, `SELECT `+valueColumns+` FROM dimension_values WHERE dimension_id=$1 ORDER BY code`, dimensionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.DimensionValue
	for rows.Next() {
		v, err := scanValue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *repository) SetValueActive(ctx context.Context, id int64, active bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE dimension_values SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.ErrDimensionNotFound
	}
	return nil
}

func (r *repository) DeleteValue(ctx context.Context, id int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM dimension_values WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.ErrDimensionNotFound
	}
	return nil
}

func (r *repository) ValueHasAssignments(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_line_dimensions WHERE dimension_value_id=$1)`, id).Scan(&exists)
	return exists, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

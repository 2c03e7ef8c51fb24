package mappings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// Repository resolves (module, role) pairs to default ledger accounts. The
// table replaces the hardcoded account codes the posting rules would
// otherwise carry.
type Repository interface {
	Get(ctx context.Context, module ledger.SourceModule, role ledger.AccountRole) (ledger.AccountMapping, error)
	List(ctx context.Context, module ledger.SourceModule) ([]ledger.AccountMapping, error)
	Upsert(ctx context.Context, m ledger.AccountMapping) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get resolves the default account for a role within a module.
func (r *repository) Get(ctx context.Context, module ledger.SourceModule, role ledger.AccountRole) (ledger.AccountMapping, error) {
	if module == "" || role == "" {
		return ledger.AccountMapping{}, errors.New("mappings: module and role required")
	}
	var m ledger.AccountMapping
	err := r.db.QueryRow(ctx, `SELECT module, role, account_id, created_at, updated_at FROM account_mappings WHERE module=$1 AND role=$2`, module, role).
		Scan(&m.Module, &m.Role, &m.AccountID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.AccountMapping{}, ledger.ErrMappingNotFound
		}
		return ledger.AccountMapping{}, err
	}
	return m, nil
}

// List returns all mappings of one module.
func (r *repository) List(ctx context.Context, module ledger.SourceModule) ([]ledger.AccountMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT module, role, account_id, created_at, updated_at FROM account_mappings WHERE module=$1 ORDER BY role`, module)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.AccountMapping
	for rows.Next() {
		var m ledger.AccountMapping
		if err := rows.Scan(&m.Module, &m.Role, &m.AccountID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Upsert installs or replaces a default mapping.
func (r *repository) Upsert(ctx context.Context, m ledger.AccountMapping) error {
	if m.Module == "" || m.Role == "" || m.AccountID == 0 {
		return errors.New("mappings: module, role and account required")
	}
	_, err := r.db.Exec(ctx, `INSERT INTO account_mappings (module, role, account_id) VALUES ($1,$2,$3)
ON CONFLICT (module, role) DO UPDATE SET account_id=EXCLUDED.account_id, updated_at=NOW()`,
		m.Module, m.Role, m.AccountID)
	return err
}

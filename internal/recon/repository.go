package recon

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository reads ledger aggregates and stores reconciliation snapshots.
type Repository interface {
	GLTotalsByDimension(ctx context.Context, module ledger.SourceModule, role ledger.AccountRole, period shared.Period) ([]GLTotal, error)
	InsertSnapshot(ctx context.Context, req SnapshotRequest) (Snapshot, error)
	GetSnapshot(ctx context.Context, id int64) (Snapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error)
	UpdateStatus(ctx context.Context, id int64, status SnapshotStatus) error
	SavePayload(ctx context.Context, id int64, report *Report, errMsg string) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// GLTotalsByDimension sums the module's anchor-role journal lines per
// primary dimension assignment. Lines without assignments land in the
// zero bucket, mirroring documents without dimensions.
func (r *repository) GLTotalsByDimension(ctx context.Context, module ledger.SourceModule, role ledger.AccountRole, period shared.Period) ([]GLTotal, error) {
	rows, err := r.db.Query(ctx, `SELECT COALESCE(d.dimension_value_id, 0) AS dim,
  SUM(CASE WHEN l.debit > 0 THEN l.debit ELSE l.credit END),
  COUNT(DISTINCT e.id)
FROM journal_entries e
JOIN journal_lines l ON l.entry_id = e.id
LEFT JOIN journal_line_dimensions d ON d.line_id = l.id AND d.is_primary
WHERE e.source_module=$1 AND l.role=$2 AND e.date >= $3 AND e.date < $4
GROUP BY 1 ORDER BY 1`,
		module, role, period.Start(), period.End())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GLTotal
	for rows.Next() {
		var t GLTotal
		if err := rows.Scan(&t.DimensionValueID, &t.Total, &t.Entries); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const snapshotColumns = `id, module, period, status, triggered_by, error, payload, generated_at, created_at, updated_at`

func (r *repository) InsertSnapshot(ctx context.Context, req SnapshotRequest) (Snapshot, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO recon_snapshots (module, period, status, triggered_by)
VALUES ($1,$2,$3,$4) RETURNING `+snapshotColumns,
		req.Module, req.Period.String(), SnapshotPending, req.ActorID)
	return scanSnapshot(row)
}

func (r *repository) GetSnapshot(ctx context.Context, id int64) (Snapshot, error) {
	snap, err := scanSnapshot(r.db.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM recon_snapshots WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrSnapshotNotFound
		}
		return Snapshot{}, err
	}
	return snap, nil
}

func (r *repository) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+snapshotColumns+` FROM recon_snapshots ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status SnapshotStatus) error {
	cmd, err := r.db.Exec(ctx, `UPDATE recon_snapshots SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSnapshotNotFound
	}
	return nil
}

func (r *repository) SavePayload(ctx context.Context, id int64, report *Report, errMsg string) error {
	var payload []byte
	if report != nil {
		var err error
		payload, err = json.Marshal(report)
		if err != nil {
			return err
		}
	}
	_, err := r.db.Exec(ctx, `UPDATE recon_snapshots SET payload=$2, error=$3, generated_at=NOW(), updated_at=NOW() WHERE id=$1`,
		id, payload, errMsg)
	return err
}

func scanSnapshot(row pgx.Row) (Snapshot, error) {
	var (
		snap       Snapshot
		periodRaw  string
		payloadRaw []byte
	)
	err := row.Scan(&snap.ID, &snap.Module, &periodRaw, &snap.Status, &snap.TriggeredBy, &snap.Error,
		&payloadRaw, &snap.GeneratedAt, &snap.CreatedAt, &snap.UpdatedAt)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Period, err = shared.ParsePeriod(periodRaw)
	if err != nil {
		return Snapshot{}, err
	}
	if len(payloadRaw) > 0 {
		var report Report
		if err := json.Unmarshal(payloadRaw, &report); err != nil {
			return Snapshot{}, err
		}
		snap.Payload = &report
	}
	return snap, nil
}

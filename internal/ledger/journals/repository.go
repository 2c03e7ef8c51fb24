package journals

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository encapsulates DB operations for journal entries.
type Repository interface {
	List(ctx context.Context, module ledger.SourceModule, limit int) ([]ledger.Entry, error)
	GetWithLines(ctx context.Context, entryID int64) (ledger.Entry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the write operations available within a transaction.
// The ledger is append-only: entries and lines are never updated in place,
// corrections happen through reversing entries.
type TxRepository interface {
	InsertEntry(ctx context.Context, in ledger.PostingInput) (ledger.Entry, error)
	InsertLines(ctx context.Context, entryID int64, lines []ledger.LineInput) ([]int64, error)
	LinkSource(ctx context.Context, module ledger.SourceModule, ref uuid.UUID, entryID int64) error
	GetSourceLink(ctx context.Context, module ledger.SourceModule, ref uuid.UUID) (int64, error)
	GetEntryWithLines(ctx context.Context, entryID int64) (ledger.Entry, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, number, date, source_module, source_ref, reference, memo, branch_id, total_debit, total_credit, created_by, posted_at, created_at, updated_at`

func scanEntry(row pgx.Row) (ledger.Entry, error) {
	var e ledger.Entry
	err := row.Scan(&e.ID, &e.Number, &e.Date, &e.SourceModule, &e.SourceRef, &e.Reference, &e.Memo, &e.BranchID,
		&e.TotalDebit, &e.TotalCredit, &e.CreatedBy, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (r *repository) List(ctx context.Context, module ledger.SourceModule, limit int) ([]ledger.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + entryColumns + ` FROM journal_entries`
	args := []any{limit}
	if module != "" {
		query += ` WHERE source_module=$2`
		args = append(args, module)
	}
	query += ` ORDER BY number DESC LIMIT $1`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) GetWithLines(ctx context.Context, entryID int64) (ledger.Entry, error) {
	var entry ledger.Entry
	err := r.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetEntryWithLines(ctx, entryID)
		return err
	})
	return entry, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertEntry(ctx context.Context, in ledger.PostingInput) (ledger.Entry, error) {
	debit, credit := sumLines(in.Lines)
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (date, source_module, source_ref, reference, memo, branch_id, total_debit, total_credit, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, number, posted_at, created_at, updated_at`,
		in.Date, in.SourceModule, in.SourceRef, in.Reference, in.Memo, in.BranchID, debit, credit, in.CreatedBy)
	entry := ledger.Entry{
		Date:         in.Date,
		SourceModule: in.SourceModule,
		SourceRef:    in.SourceRef,
		Reference:    in.Reference,
		Memo:         in.Memo,
		BranchID:     in.BranchID,
		TotalDebit:   debit,
		TotalCredit:  credit,
		CreatedBy:    in.CreatedBy,
	}
	if err := row.Scan(&entry.ID, &entry.Number, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return ledger.Entry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []ledger.LineInput) ([]int64, error) {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		var lineID int64
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, account_id, role, debit, credit, description)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
			entryID, line.AccountID, line.Role, line.Debit, line.Credit, line.Description).Scan(&lineID)
		if err != nil {
			return nil, err
		}
		for _, dim := range line.Dimensions {
			if _, err := r.tx.Exec(ctx, `INSERT INTO journal_line_dimensions (line_id, dimension_value_id, allocation_pct, is_primary)
VALUES ($1,$2,$3,$4)`, lineID, dim.DimensionValueID, dim.AllocationPct, dim.IsPrimary); err != nil {
				return nil, err
			}
		}
		ids = append(ids, lineID)
	}
	return ids, nil
}

func (r *txRepository) LinkSource(ctx context.Context, module ledger.SourceModule, ref uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (module, ref_id, entry_id) VALUES ($1,$2,$3)`, module, ref, entryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ledger.ErrSourceConflict
		}
		return err
	}
	return nil
}

func (r *txRepository) GetSourceLink(ctx context.Context, module ledger.SourceModule, ref uuid.UUID) (int64, error) {
	var entryID int64
	err := r.tx.QueryRow(ctx, `SELECT entry_id FROM source_links WHERE module=$1 AND ref_id=$2`, module, ref).Scan(&entryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ledger.ErrEntryNotFound
		}
		return 0, err
	}
	return entryID, nil
}

func (r *txRepository) GetEntryWithLines(ctx context.Context, entryID int64) (ledger.Entry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Entry{}, ledger.ErrEntryNotFound
		}
		return ledger.Entry{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, account_id, role, debit, credit, description, created_at, updated_at
FROM journal_lines WHERE entry_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return ledger.Entry{}, err
	}
	defer rows.Close()
	var lines []ledger.Line
	for rows.Next() {
		var line ledger.Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Role, &line.Debit, &line.Credit, &line.Description, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return ledger.Entry{}, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return ledger.Entry{}, err
	}
	for i := range lines {
		dims, err := r.lineDimensions(ctx, lines[i].ID)
		if err != nil {
			return ledger.Entry{}, err
		}
		lines[i].Dimensions = dims
	}
	entry.Lines = lines
	return entry, nil
}

func (r *txRepository) lineDimensions(ctx context.Context, lineID int64) ([]ledger.DimensionAssignment, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, line_id, dimension_value_id, allocation_pct, is_primary
FROM journal_line_dimensions WHERE line_id=$1 ORDER BY id ASC`, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var dims []ledger.DimensionAssignment
	for rows.Next() {
		var d ledger.DimensionAssignment
		if err := rows.Scan(&d.ID, &d.LineID, &d.DimensionValueID, &d.AllocationPct, &d.IsPrimary); err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}
	return dims, rows.Err()
}

func sumLines(lines []ledger.LineInput) (debit, credit decimal.Decimal) {
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

package posting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed posting repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) GetDocument(ctx context.Context, id uuid.UUID) (documents.Document, error) {
	doc, err := documents.ScanDocument(r.db.QueryRow(ctx,
		`SELECT `+documents.DocumentColumns()+` FROM source_documents WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return documents.Document{}, documents.ErrDocumentNotFound
		}
		return documents.Document{}, err
	}
	doc.Splits, err = loadSplits(ctx, r.db, id)
	if err != nil {
		return documents.Document{}, err
	}
	return doc, nil
}

func (r *repository) MarkError(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE source_documents SET posting_status=$2, updated_at=NOW() WHERE id=$1 AND posting_status <> $3`,
		id, ledger.PostingStatusError, ledger.PostingStatusPosted)
	return err
}

// txRepository runs every posting query on one transaction. The journal
// inserts mirror the ledger repository; they are needed here so the
// document claim and the ledger writes share a transaction context.
type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetDocumentForUpdate(ctx context.Context, id uuid.UUID) (documents.Document, error) {
	doc, err := documents.ScanDocument(r.tx.QueryRow(ctx,
		`SELECT `+documents.DocumentColumns()+` FROM source_documents WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return documents.Document{}, documents.ErrDocumentNotFound
		}
		return documents.Document{}, err
	}
	doc.Splits, err = loadSplits(ctx, r.tx, id)
	if err != nil {
		return documents.Document{}, err
	}
	return doc, nil
}

func (r *txRepository) Mappings(ctx context.Context, module ledger.SourceModule) (map[ledger.AccountRole]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT role, account_id FROM account_mappings WHERE module=$1`, module)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[ledger.AccountRole]int64)
	for rows.Next() {
		var (
			role      ledger.AccountRole
			accountID int64
		)
		if err := rows.Scan(&role, &accountID); err != nil {
			return nil, err
		}
		out[role] = accountID
	}
	return out, rows.Err()
}

func (r *txRepository) AccountsByID(ctx context.Context, ids []int64) (map[int64]ledger.Account, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT id, code, name, type, requires_dimensions, is_active FROM accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]ledger.Account, len(ids))
	for rows.Next() {
		var a ledger.Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.RequiresDimensions, &a.IsActive); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (r *txRepository) DimensionValues(ctx context.Context, ids []int64) (map[int64]ledger.DimensionValue, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT v.id, v.dimension_id, v.code, v.name, v.parent_id, v.is_active AND d.is_active
FROM dimension_values v JOIN dimensions d ON d.id = v.dimension_id WHERE v.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]ledger.DimensionValue, len(ids))
	for rows.Next() {
		var v ledger.DimensionValue
		if err := rows.Scan(&v.ID, &v.DimensionID, &v.Code, &v.Name, &v.ParentID, &v.IsActive); err != nil {
			return nil, err
		}
		out[v.ID] = v
	}
	return out, rows.Err()
}

func (r *txRepository) RequiredDimensions(ctx context.Context) ([]ledger.Dimension, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT id, code, name, required, is_active FROM dimensions WHERE required AND is_active ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Dimension
	for rows.Next() {
		var d ledger.Dimension
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.Required, &d.IsActive); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
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

func (r *txRepository) InsertEntry(ctx context.Context, in ledger.PostingInput) (ledger.Entry, error) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range in.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
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

func (r *txRepository) SaveDocumentPosting(ctx context.Context, id uuid.UUID, entryID int64, lineIDs []int64, userID int64, at time.Time) (bool, error) {
	cmd, err := r.tx.Exec(ctx, `UPDATE source_documents
SET posting_status=$2, posted_by=$3, posted_at=$4, entry_id=$5, line_ids=$6, updated_at=NOW()
WHERE id=$1 AND posting_status <> $2`,
		id, ledger.PostingStatusPosted, userID, at, entryID, lineIDs)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadSplits(ctx context.Context, q querier, id uuid.UUID) ([]documents.Split, error) {
	rows, err := q.Query(ctx, `SELECT dimension_value_id, pct FROM document_splits WHERE document_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []documents.Split
	for rows.Next() {
		var s documents.Split
		if err := rows.Scan(&s.DimensionValueID, &s.Pct); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

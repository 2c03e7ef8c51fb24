package documents

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

var (
	// ErrDocumentNotFound indicates the referenced document does not exist.
	ErrDocumentNotFound = errors.New("documents: document not found")
	// ErrReferenceTaken indicates a duplicate reference within a module.
	ErrReferenceTaken = errors.New("documents: reference already in use")
)

// SourceTotal is one aggregate row of document totals per dimension.
type SourceTotal struct {
	DimensionValueID int64
	Total            decimal.Decimal
	Count            int
}

// LinkedPair joins a posted sales invoice to its originating production
// order for gross-margin reporting.
type LinkedPair struct {
	InvoiceID         uuid.UUID
	ProductionOrderID uuid.UUID
	Revenue           decimal.Decimal
	COGS              decimal.Decimal
	RevenueDimension  int64
	CostDimension     int64
}

// Repository stores source documents and the aggregates reconciliation
// reads. Transactional posting-time access lives with the posting engine.
type Repository interface {
	Create(ctx context.Context, doc Document) (Document, error)
	Get(ctx context.Context, id uuid.UUID) (Document, error)
	List(ctx context.Context, module ledger.SourceModule, status ledger.PostingStatus, limit int) ([]Document, error)
	MarkError(ctx context.Context, id uuid.UUID) error
	SourceTotals(ctx context.Context, module ledger.SourceModule, period shared.Period) ([]SourceTotal, error)
	LinkedPairs(ctx context.Context, period shared.Period) ([]LinkedPair, error)
	SetReconciled(ctx context.Context, module ledger.SourceModule, period shared.Period, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const documentColumns = `id, kind, reference, date, branch_id, total, net, tax, labor, output_vat, input_vat, direction,
account_overrides, cost_center_id, project_id, department_id, cost_origin, posting_status, posted_by, posted_at,
entry_id, line_ids, reconciled_at, created_at, updated_at`

// ScanDocument reads one source_documents row. Shared with the posting
// repository which selects the same column list inside its transaction.
func ScanDocument(row pgx.Row) (Document, error) {
	var (
		d            Document
		overridesRaw []byte
		originRaw    []byte
	)
	err := row.Scan(&d.ID, &d.Kind, &d.Reference, &d.Date, &d.BranchID, &d.Total, &d.Net, &d.Tax, &d.Labor,
		&d.OutputVAT, &d.InputVAT, &d.Direction, &overridesRaw, &d.CostCenterID, &d.ProjectID, &d.DepartmentID,
		&originRaw, &d.PostingStatus, &d.PostedBy, &d.PostedAt, &d.EntryID, &d.LineIDs, &d.ReconciledAt,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	if len(overridesRaw) > 0 {
		if err := json.Unmarshal(overridesRaw, &d.AccountOverrides); err != nil {
			return Document{}, err
		}
	}
	if len(originRaw) > 0 {
		var origin CostOrigin
		if err := json.Unmarshal(originRaw, &origin); err != nil {
			return Document{}, err
		}
		d.CostOrigin = &origin
	}
	return d, nil
}

// DocumentColumns exposes the select list for transactional readers.
func DocumentColumns() string { return documentColumns }

func (r *repository) Create(ctx context.Context, doc Document) (Document, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.PostingStatus == "" {
		doc.PostingStatus = ledger.PostingStatusDraft
	}
	overrides, err := json.Marshal(doc.AccountOverrides)
	if err != nil {
		return Document{}, err
	}
	var origin []byte
	if doc.CostOrigin != nil {
		origin, err = json.Marshal(doc.CostOrigin)
		if err != nil {
			return Document{}, err
		}
	}
	row := r.db.QueryRow(ctx, `INSERT INTO source_documents
(id, kind, reference, date, branch_id, total, net, tax, labor, output_vat, input_vat, direction,
 account_overrides, cost_center_id, project_id, department_id, cost_origin, posting_status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
RETURNING `+documentColumns,
		doc.ID, doc.Kind, doc.Reference, doc.Date, doc.BranchID, doc.Total, doc.Net, doc.Tax, doc.Labor,
		doc.OutputVAT, doc.InputVAT, doc.Direction, overrides, doc.CostCenterID, doc.ProjectID, doc.DepartmentID,
		origin, doc.PostingStatus)
	created, err := ScanDocument(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Document{}, ErrReferenceTaken
		}
		return Document{}, err
	}
	for _, split := range doc.Splits {
		if _, err := r.db.Exec(ctx, `INSERT INTO document_splits (document_id, dimension_value_id, pct) VALUES ($1,$2,$3)`,
			created.ID, split.DimensionValueID, split.Pct); err != nil {
			return Document{}, err
		}
	}
	created.Splits = doc.Splits
	return created, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Document, error) {
	doc, err := ScanDocument(r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM source_documents WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrDocumentNotFound
		}
		return Document{}, err
	}
	doc.Splits, err = r.splits(ctx, id)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (r *repository) splits(ctx context.Context, id uuid.UUID) ([]Split, error) {
	rows, err := r.db.Query(ctx, `SELECT dimension_value_id, pct FROM document_splits WHERE document_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Split
	for rows.Next() {
		var s Split
		if err := rows.Scan(&s.DimensionValueID, &s.Pct); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repository) List(ctx context.Context, module ledger.SourceModule, status ledger.PostingStatus, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + documentColumns + ` FROM source_documents WHERE 1=1`
	args := []any{}
	if module != "" {
		args = append(args, moduleKinds(module))
		query += ` AND kind = ANY($1)`
	}
	if status != "" {
		args = append(args, status)
		query += ` AND posting_status = $` + itoa(len(args))
	}
	args = append(args, limit)
	query += ` ORDER BY date DESC, created_at DESC LIMIT $` + itoa(len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		d, err := ScanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repository) MarkError(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.db.Exec(ctx, `UPDATE source_documents SET posting_status=$2, updated_at=NOW() WHERE id=$1 AND posting_status <> $3`,
		id, ledger.PostingStatusError, ledger.PostingStatusPosted)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (r *repository) SourceTotals(ctx context.Context, module ledger.SourceModule, period shared.Period) ([]SourceTotal, error) {
	// Split documents carry no cost center of their own; they group by the
	// first split value, which posting marks as the primary assignment.
	rows, err := r.db.Query(ctx, `SELECT COALESCE(
  (SELECT s.dimension_value_id FROM document_splits s WHERE s.document_id = d.id ORDER BY s.id LIMIT 1),
  d.cost_center_id, d.project_id, d.department_id, 0) AS dim, SUM(d.total), COUNT(*)
FROM source_documents d
WHERE d.kind = ANY($1) AND d.posting_status=$2 AND d.date >= $3 AND d.date < $4
GROUP BY 1 ORDER BY 1`,
		moduleKinds(module), ledger.PostingStatusPosted, period.Start(), period.End())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SourceTotal
	for rows.Next() {
		var t SourceTotal
		if err := rows.Scan(&t.DimensionValueID, &t.Total, &t.Count); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) LinkedPairs(ctx context.Context, period shared.Period) ([]LinkedPair, error) {
	rows, err := r.db.Query(ctx, `SELECT d.id, d.cost_origin, d.net,
COALESCE(
  (SELECT s.dimension_value_id FROM document_splits s WHERE s.document_id = d.id ORDER BY s.id LIMIT 1),
  d.cost_center_id, d.project_id, d.department_id, 0) AS revenue_dim
FROM source_documents d
WHERE d.kind=$1 AND d.posting_status=$2 AND d.cost_origin IS NOT NULL AND d.date >= $3 AND d.date < $4
ORDER BY d.date, d.id`,
		KindSalesInvoice, ledger.PostingStatusPosted, period.Start(), period.End())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LinkedPair
	for rows.Next() {
		var (
			pair      LinkedPair
			originRaw []byte
		)
		if err := rows.Scan(&pair.InvoiceID, &originRaw, &pair.Revenue, &pair.RevenueDimension); err != nil {
			return nil, err
		}
		var origin CostOrigin
		if err := json.Unmarshal(originRaw, &origin); err != nil {
			return nil, err
		}
		pair.ProductionOrderID = origin.ProductionOrderID
		pair.COGS = origin.Amount
		pair.CostDimension = origin.PrimaryDimension()
		out = append(out, pair)
	}
	return out, rows.Err()
}

func (r *repository) SetReconciled(ctx context.Context, module ledger.SourceModule, period shared.Period, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE source_documents SET reconciled_at=$1, updated_at=NOW()
WHERE kind = ANY($2) AND posting_status=$3 AND date >= $4 AND date < $5`,
		at, moduleKinds(module), ledger.PostingStatusPosted, period.Start(), period.End())
	return err
}

func moduleKinds(module ledger.SourceModule) []string {
	switch module {
	case ledger.ModuleSales:
		return []string{string(KindSalesInvoice)}
	case ledger.ModulePurchases:
		return []string{string(KindPurchaseInvoice)}
	case ledger.ModuleManufacturing:
		return []string{string(KindProductionOrder)}
	case ledger.ModuleBanking:
		return []string{string(KindBankTransaction)}
	case ledger.ModuleVAT:
		return []string{string(KindVATSettlement)}
	}
	return nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

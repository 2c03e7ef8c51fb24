package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AuditPort records registry mutations for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service validates and coordinates chart of accounts changes.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the registry service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// CreateInput carries fields for a new account.
type CreateInput struct {
	Code               string
	Name               string
	Type               ledger.AccountType
	ParentID           *int64
	IFRSClass          string
	RequiresDimensions bool
	ActorID            int64
}

// UpdateInput carries mutable account fields.
type UpdateInput struct {
	ID                 int64
	Code               string
	Name               string
	Type               ledger.AccountType
	ParentID           *int64
	IFRSClass          string
	RequiresDimensions bool
	ActorID            int64
}

// Create registers a new account.
func (s *Service) Create(ctx context.Context, in CreateInput) (ledger.Account, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return ledger.Account{}, errors.New("accounts: code required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return ledger.Account{}, errors.New("accounts: name required")
	}
	if !in.Type.Valid() {
		return ledger.Account{}, fmt.Errorf("accounts: unknown account type %q", in.Type)
	}
	if in.ParentID != nil {
		if _, err := s.repo.GetByID(ctx, *in.ParentID); err != nil {
			return ledger.Account{}, err
		}
	}
	created, err := s.repo.Create(ctx, ledger.Account{
		Code:               code,
		Name:               strings.TrimSpace(in.Name),
		Type:               in.Type,
		ParentID:           in.ParentID,
		IFRSClass:          in.IFRSClass,
		RequiresDimensions: in.RequiresDimensions,
		IsActive:           true,
	})
	if err != nil {
		return ledger.Account{}, err
	}
	s.record(ctx, in.ActorID, "account.create", created.ID, map[string]any{"code": created.Code})
	return created, nil
}

// Update mutates an account. The code is immutable once journal lines
// reference the account.
func (s *Service) Update(ctx context.Context, in UpdateInput) (ledger.Account, error) {
	current, err := s.repo.GetByID(ctx, in.ID)
	if err != nil {
		return ledger.Account{}, err
	}
	if !in.Type.Valid() {
		return ledger.Account{}, fmt.Errorf("accounts: unknown account type %q", in.Type)
	}
	code := strings.TrimSpace(in.Code)
	if code != current.Code {
		used, err := s.repo.HasJournalLines(ctx, in.ID)
		if err != nil {
			return ledger.Account{}, err
		}
		if used {
			return ledger.Account{}, errors.New("accounts: code immutable once posted against")
		}
	}
	if in.ParentID != nil {
		if err := s.checkHierarchy(ctx, in.ID, *in.ParentID); err != nil {
			return ledger.Account{}, err
		}
	}
	current.Code = code
	current.Name = strings.TrimSpace(in.Name)
	current.Type = in.Type
	current.ParentID = in.ParentID
	current.IFRSClass = in.IFRSClass
	current.RequiresDimensions = in.RequiresDimensions
	if err := s.repo.Update(ctx, current); err != nil {
		return ledger.Account{}, err
	}
	s.record(ctx, in.ActorID, "account.update", current.ID, map[string]any{"code": current.Code})
	return current, nil
}

// Deactivate soft-disables an account. Referenced accounts are never hard
// deleted, only deactivated.
func (s *Service) Deactivate(ctx context.Context, id, actorID int64) error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.record(ctx, actorID, "account.deactivate", id, nil)
	return nil
}

// Activate re-enables an account.
func (s *Service) Activate(ctx context.Context, id, actorID int64) error {
	if err := s.repo.SetActive(ctx, id, true); err != nil {
		return err
	}
	s.record(ctx, actorID, "account.activate", id, nil)
	return nil
}

// Delete removes an account that was never posted against. Accounts with
// journal lines return ErrAccountInUse and must be deactivated instead.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	used, err := s.repo.HasJournalLines(ctx, id)
	if err != nil {
		return err
	}
	if used {
		return ledger.ErrAccountInUse
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "account.delete", id, nil)
	return nil
}

// Get fetches an account by id.
func (s *Service) Get(ctx context.Context, id int64) (ledger.Account, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByCode fetches an account by its unique code.
func (s *Service) GetByCode(ctx context.Context, code string) (ledger.Account, error) {
	return s.repo.GetByCode(ctx, code)
}

// List returns accounts matching the filters.
func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]ledger.Account, int, error) {
	return s.repo.List(ctx, filters)
}

// checkHierarchy walks the ancestor chain of the proposed parent and rejects
// self-references and cycles.
func (s *Service) checkHierarchy(ctx context.Context, id, parentID int64) error {
	if parentID == id {
		return ledger.ErrHierarchyCycle
	}
	seen := map[int64]bool{id: true}
	cursor := parentID
	for {
		node, err := s.repo.GetByID(ctx, cursor)
		if err != nil {
			return err
		}
		if seen[node.ID] {
			return ledger.ErrHierarchyCycle
		}
		seen[node.ID] = true
		if node.ParentID == nil {
			return nil
		}
		cursor = *node.ParentID
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "account",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}

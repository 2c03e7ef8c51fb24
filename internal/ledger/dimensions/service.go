package dimensions

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

// Service validates and coordinates dimension registry changes.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the registry service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// CreateDimensionInput carries fields for a new dimension.
type CreateDimensionInput struct {
	Code              string
	Name              string
	Scope             string
	Required          bool
	SupportsHierarchy bool
	ActorID           int64
}

// CreateValueInput carries fields for a new dimension value.
type CreateValueInput struct {
	DimensionID int64
	Code        string
	Name        string
	ParentID    *int64
	ActorID     int64
}

// UpdateValueInput carries mutable value fields.
type UpdateValueInput struct {
	ID       int64
	Code     string
	Name     string
	ParentID *int64
	ActorID  int64
}

// CreateDimension registers a new analytical axis.
func (s *Service) CreateDimension(ctx context.Context, in CreateDimensionInput) (ledger.Dimension, error) {
	if strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.Name) == "" {
		return ledger.Dimension{}, errors.New("dimensions: code and name required")
	}
	created, err := s.repo.CreateDimension(ctx, ledger.Dimension{
		Code:              strings.TrimSpace(in.Code),
		Name:              strings.TrimSpace(in.Name),
		Scope:             in.Scope,
		Required:          in.Required,
		SupportsHierarchy: in.SupportsHierarchy,
		IsActive:          true,
	})
	if err != nil {
		return ledger.Dimension{}, err
	}
	s.record(ctx, in.ActorID, "dimension.create", created.ID, map[string]any{"code": created.Code})
	return created, nil
}

// GetDimension fetches a dimension.
func (s *Service) GetDimension(ctx context.Context, id int64) (ledger.Dimension, error) {
	return s.repo.GetDimension(ctx, id)
}

// ListDimensions enumerates all dimensions.
func (s *Service) ListDimensions(ctx context.Context) ([]ledger.Dimension, error) {
	return s.repo.ListDimensions(ctx)
}

// RequiredDimensions returns the active dimensions flagged as required. The
// posting engine refuses to post lines missing an assignment for any of them.
func (s *Service) RequiredDimensions(ctx context.Context) ([]ledger.Dimension, error) {
	return s.repo.ListRequiredDimensions(ctx)
}

// DeactivateDimension soft-disables an axis and, implicitly, posting against
// any of its values.
func (s *Service) DeactivateDimension(ctx context.Context, id, actorID int64) error {
	if err := s.repo.SetDimensionActive(ctx, id, false); err != nil {
		return err
	}
	s.record(ctx, actorID, "dimension.deactivate", id, nil)
	return nil
}

// CreateValue registers a value under a dimension. Parents must belong to
// the same dimension and must not introduce a cycle.
func (s *Service) CreateValue(ctx context.Context, in CreateValueInput) (ledger.DimensionValue, error) {
	if strings.TrimSpace(in.Code) == "" {
		return ledger.DimensionValue{}, errors.New("dimensions: value code required")
	}
	dim, err := s.repo.GetDimension(ctx, in.DimensionID)
	if err != nil {
		return ledger.DimensionValue{}, err
	}
	if !dim.IsActive {
		return ledger.DimensionValue{}, ledger.ErrDimensionInactive
	}
	if in.ParentID != nil {
		if !dim.SupportsHierarchy {
			return ledger.DimensionValue{}, errors.New("dimensions: dimension does not support hierarchy")
		}
		parent, err := s.repo.GetValue(ctx, *in.ParentID)
		if err != nil {
			return ledger.DimensionValue{}, err
		}
		if parent.DimensionID != in.DimensionID {
			return ledger.DimensionValue{}, ledger.ErrDimensionMismatch
		}
	}
	created, err := s.repo.CreateValue(ctx, ledger.DimensionValue{
		DimensionID: in.DimensionID,
		Code:        strings.TrimSpace(in.Code),
		Name:        strings.TrimSpace(in.Name),
		ParentID:    in.ParentID,
		IsActive:    true,
	})
	if err != nil {
		return ledger.DimensionValue{}, err
	}
	s.record(ctx, in.ActorID, "dimension_value.create", created.ID, map[string]any{"code": created.Code})
	return created, nil
}

// UpdateValue mutates a value, re-checking parent ownership and cycles.
func (s *Service) UpdateValue(ctx context.Context, in UpdateValueInput) (ledger.DimensionValue, error) {
	current, err := s.repo.GetValue(ctx, in.ID)
	if err != nil {
		return ledger.DimensionValue{}, err
	}
	if in.ParentID != nil {
		parent, err := s.repo.GetValue(ctx, *in.ParentID)
		if err != nil {
			return ledger.DimensionValue{}, err
		}
		if parent.DimensionID != current.DimensionID {
			return ledger.DimensionValue{}, ledger.ErrDimensionMismatch
		}
		if err := s.checkValueHierarchy(ctx, current.ID, *in.ParentID); err != nil {
			return ledger.DimensionValue{}, err
		}
	}
	current.Code = strings.TrimSpace(in.Code)
	current.Name = strings.TrimSpace(in.Name)
	current.ParentID = in.ParentID
	if err := s.repo.UpdateValue(ctx, current); err != nil {
		return ledger.DimensionValue{}, err
	}
	s.record(ctx, in.ActorID, "dimension_value.update", current.ID, map[string]any{"code": current.Code})
	return current, nil
}

// GetValue fetches a value by id.
func (s *Service) GetValue(ctx context.Context, id int64) (ledger.DimensionValue, error) {
	return s.repo.GetValue(ctx, id)
}

// ListValues enumerates the values of one dimension.
func (s *Service) ListValues(ctx context.Context, dimensionID int64) ([]ledger.DimensionValue, error) {
	return s.repo.ListValues(ctx, dimensionID)
}

// DeactivateValue soft-disables a value.
func (s *Service) DeactivateValue(ctx context.Context, id, actorID int64) error {
	if err := s.repo.SetValueActive(ctx, id, false); err != nil {
		return err
	}
	s.record(ctx, actorID, "dimension_value.deactivate", id, nil)
	return nil
}

// DeleteValue removes a value that no journal line references. Referenced
// values return ErrDimensionValueInUse and must be deactivated instead.
func (s *Service) DeleteValue(ctx context.Context, id, actorID int64) error {
	used, err := s.repo.ValueHasAssignments(ctx, id)
	if err != nil {
		return err
	}
	if used {
		return ledger.ErrDimensionValueInUse
	}
	if err := s.repo.DeleteValue(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "dimension_value.delete", id, nil)
	return nil
}

// checkValueHierarchy walks ancestors of the proposed parent; the access
// pattern is always "ancestors of X", an index on parent_id serves it.
func (s *Service) checkValueHierarchy(ctx context.Context, id, parentID int64) error {
	if parentID == id {
		return ledger.ErrHierarchyCycle
	}
	seen := map[int64]bool{id: true}
	cursor := parentID
	for {
		node, err := s.repo.GetValue(ctx, cursor)
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
		Entity:   "dimension",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}

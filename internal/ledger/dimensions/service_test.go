package dimensions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

type memoryRepo struct {
	dimensions map[int64]ledger.Dimension
	values     map[int64]ledger.DimensionValue
	assigned   map[int64]bool
	nextDimID  int64
	nextValID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		dimensions: make(map[int64]ledger.Dimension),
		values:     make(map[int64]ledger.DimensionValue),
		assigned:   make(map[int64]bool),
	}
}

func (r *memoryRepo) CreateDimension(ctx context.Context, d ledger.Dimension) (ledger.Dimension, error) {
	for _, existing := range r.dimensions {
		if existing.Code == d.Code {
			return ledger.Dimension{}, ledger.ErrCodeTaken
		}
	}
	r.nextDimID++
	d.ID = r.nextDimID
	r.dimensions[d.ID] = d
	return d, nil
}

func (r *memoryRepo) GetDimension(ctx context.Context, id int64) (ledger.Dimension, error) {
	d, ok := r.dimensions[id]
	if !ok {
		return ledger.Dimension{}, ledger.ErrDimensionNotFound
	}
	return d, nil
}

func (r *memoryRepo) ListDimensions(ctx context.Context) ([]ledger.Dimension, error) {
	var out []ledger.Dimension
	for _, d := range r.dimensions {
		out = append(out, d)
	}
	return out, nil
}

func (r *memoryRepo) ListRequiredDimensions(ctx context.Context) ([]ledger.Dimension, error) {
	var out []ledger.Dimension
	for _, d := range r.dimensions {
		if d.Required && d.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *memoryRepo) SetDimensionActive(ctx context.Context, id int64, active bool) error {
	d, ok := r.dimensions[id]
	if !ok {
		return ledger.ErrDimensionNotFound
	}
	d.IsActive = active
	r.dimensions[id] = d
	return nil
}

func (r *memoryRepo) CreateValue(ctx context.Context, v ledger.DimensionValue) (ledger.DimensionValue, error) {
	r.nextValID++
	v.ID = r.nextValID
	r.values[v.ID] = v
	return v, nil
}

func (r *memoryRepo) UpdateValue(ctx context.Context, v ledger.DimensionValue) error {
	if _, ok := r.values[v.ID]; !ok {
		return ledger.ErrDimensionNotFound
	}
	r.values[v.ID] = v
	return nil
}

func (r *memoryRepo) GetValue(ctx context.Context, id int64) (ledger.DimensionValue, error) {
	v, ok := r.values[id]
	if !ok {
		return ledger.DimensionValue{}, ledger.ErrDimensionNotFound
	}
	return v, nil
}

func (r *memoryRepo) GetValues(ctx context.Context, ids []int64) (map[int64]ledger.DimensionValue, error) {
	out := make(map[int64]ledger.DimensionValue)
	for _, id := range ids {
		if v, ok := r.values[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (r *memoryRepo) ListValues(ctx context.Context, dimensionID int64) ([]ledger.DimensionValue, error) {
	var out []ledger.DimensionValue
	for _, v := range r.values {
		if v.DimensionID == dimensionID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *memoryRepo) SetValueActive(ctx context.Context, id int64, active bool) error {
	v, ok := r.values[id]
	if !ok {
		return ledger.ErrDimensionNotFound
	}
	v.IsActive = active
	r.values[id] = v
	return nil
}

func (r *memoryRepo) DeleteValue(ctx context.Context, id int64) error {
	if _, ok := r.values[id]; !ok {
		return ledger.ErrDimensionNotFound
	}
	delete(r.values, id)
	return nil
}

func (r *memoryRepo) ValueHasAssignments(ctx context.Context, id int64) (bool, error) {
	return r.assigned[id], nil
}

func seedDimension(t *testing.T, svc *Service, code string, hierarchy bool) ledger.Dimension {
	t.Helper()
	dim, err := svc.CreateDimension(context.Background(), CreateDimensionInput{
		Code: code, Name: code, Required: true, SupportsHierarchy: hierarchy, ActorID: 1,
	})
	require.NoError(t, err)
	return dim
}

func TestCreateValueChecksParentDimension(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	cc := seedDimension(t, svc, "CC", true)
	prj := seedDimension(t, svc, "PRJ", true)

	parent, err := svc.CreateValue(context.Background(), CreateValueInput{
		DimensionID: prj.ID, Code: "PRJ-A", Name: "Alpha", ActorID: 1,
	})
	require.NoError(t, err)

	_, err = svc.CreateValue(context.Background(), CreateValueInput{
		DimensionID: cc.ID, Code: "CC-1", Name: "Production", ParentID: &parent.ID, ActorID: 1,
	})
	require.ErrorIs(t, err, ledger.ErrDimensionMismatch)
}

func TestCreateValueOnFlatDimensionRejectsParent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	dep := seedDimension(t, svc, "DEP", false)

	root, err := svc.CreateValue(context.Background(), CreateValueInput{
		DimensionID: dep.ID, Code: "DEP-OPS", Name: "Operations", ActorID: 1,
	})
	require.NoError(t, err)

	_, err = svc.CreateValue(context.Background(), CreateValueInput{
		DimensionID: dep.ID, Code: "DEP-IT", Name: "IT", ParentID: &root.ID, ActorID: 1,
	})
	require.Error(t, err)
}

func TestCreateValueOnInactiveDimensionRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	cc := seedDimension(t, svc, "CC", false)
	require.NoError(t, svc.DeactivateDimension(context.Background(), cc.ID, 1))

	_, err := svc.CreateValue(context.Background(), CreateValueInput{
		DimensionID: cc.ID, Code: "CC-1", Name: "Production", ActorID: 1,
	})
	require.ErrorIs(t, err, ledger.ErrDimensionInactive)
}

func TestUpdateValueRejectsCycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	cc := seedDimension(t, svc, "CC", true)

	a, err := svc.CreateValue(context.Background(), CreateValueInput{DimensionID: cc.ID, Code: "A", Name: "A", ActorID: 1})
	require.NoError(t, err)
	b, err := svc.CreateValue(context.Background(), CreateValueInput{DimensionID: cc.ID, Code: "B", Name: "B", ParentID: &a.ID, ActorID: 1})
	require.NoError(t, err)

	_, err = svc.UpdateValue(context.Background(), UpdateValueInput{
		ID: a.ID, Code: "A", Name: "A", ParentID: &b.ID, ActorID: 1,
	})
	require.ErrorIs(t, err, ledger.ErrHierarchyCycle)
}

func TestDeleteValueWithAssignmentsRefused(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	cc := seedDimension(t, svc, "CC", false)
	v, err := svc.CreateValue(context.Background(), CreateValueInput{DimensionID: cc.ID, Code: "CC-1", Name: "Production", ActorID: 1})
	require.NoError(t, err)
	repo.assigned[v.ID] = true

	require.ErrorIs(t, svc.DeleteValue(context.Background(), v.ID, 1), ledger.ErrDimensionValueInUse)

	require.NoError(t, svc.DeactivateValue(context.Background(), v.ID, 1))
	got, err := svc.GetValue(context.Background(), v.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

func TestRequiredDimensionsSkipsInactive(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	cc := seedDimension(t, svc, "CC", false)
	seedDimension(t, svc, "PRJ", false)
	require.NoError(t, svc.DeactivateDimension(context.Background(), cc.ID, 1))

	required, err := svc.RequiredDimensions(context.Background())
	require.NoError(t, err)
	require.Len(t, required, 1)
	require.Equal(t, "PRJ", required[0].Code)
}

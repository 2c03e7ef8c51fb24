package shared

// ListFilters carries the standard listing query parameters used by the
// registry endpoints.
type ListFilters struct {
	Page    int
	Limit   int
	Search  string
	SortBy  string
	SortDir string

	IsActive    *bool
	AccountType string
	DimensionID *int64
}

const (
	// DefaultPage is the first page number.
	DefaultPage = 1
	// DefaultLimit bounds unpaginated listing requests.
	DefaultLimit = 20
)

// Normalize fills zero values with defaults.
func (f ListFilters) Normalize() ListFilters {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	return f
}

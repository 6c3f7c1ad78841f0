// Package catalog describes the CallRail v3 resource endpoints the extractor
// knows how to walk: path templates, declared fields and pagination style.
package catalog

import (
	"sort"
	"strings"
)

// Pagination is the paging scheme an endpoint supports.
type Pagination string

const (
	// PaginationPage uses page/per_page query parameters.
	PaginationPage Pagination = "offset"

	// PaginationCursor relies on the API's own ordering and only sends per_page.
	PaginationCursor Pagination = "relative"
)

// DefaultMaxPerPage is the CallRail page size cap.
const DefaultMaxPerPage = 250

// AccountPlaceholder is substituted with the resolved account id.
const AccountPlaceholder = "{account_id}"

// Endpoint is the static description of one resource collection.
type Endpoint struct {
	Name               string
	Path               string
	Fields             []string
	OptionalFields     []string
	Pagination         Pagination
	MaxPerPage         int
	NeedsAccount       bool
	NeedsCompany       bool
	SkipFieldSelection bool
}

// AllFields returns required then optional fields, without duplicates,
// in first-seen order. This is the authoritative column order.
func (e Endpoint) AllFields() []string {
	seen := make(map[string]struct{}, len(e.Fields)+len(e.OptionalFields))
	out := make([]string, 0, len(e.Fields)+len(e.OptionalFields))
	for _, group := range [][]string{e.Fields, e.OptionalFields} {
		for _, f := range group {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

// ResolvePath fills the account placeholder.
func (e Endpoint) ResolvePath(accountID string) string {
	return strings.ReplaceAll(e.Path, AccountPlaceholder, accountID)
}

// Registry is an immutable, ordered set of endpoints.
type Registry struct {
	order     []string
	endpoints map[string]Endpoint
}

// NewRegistry builds a registry preserving the given order.
// Later duplicates replace earlier ones but keep the original position.
func NewRegistry(endpoints ...Endpoint) *Registry {
	r := &Registry{endpoints: make(map[string]Endpoint, len(endpoints))}
	for _, ep := range endpoints {
		if ep.MaxPerPage <= 0 {
			ep.MaxPerPage = DefaultMaxPerPage
		}
		if ep.Pagination == "" {
			ep.Pagination = PaginationPage
		}
		if _, exists := r.endpoints[ep.Name]; !exists {
			r.order = append(r.order, ep.Name)
		}
		r.endpoints[ep.Name] = ep
	}
	return r
}

// Describe returns the endpoint with the given name.
func (r *Registry) Describe(name string) (Endpoint, bool) {
	ep, ok := r.endpoints[name]
	return ep, ok
}

// Has reports whether name is a known endpoint.
func (r *Registry) Has(name string) bool {
	_, ok := r.endpoints[name]
	return ok
}

// Names returns endpoint names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Unknown returns the names not present in the registry, sorted and deduplicated.
func (r *Registry) Unknown(names []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, n := range names {
		if r.Has(n) {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Info is a printable summary of an endpoint.
type Info struct {
	Name         string     `json:"name"`
	Path         string     `json:"path"`
	NeedsAccount bool       `json:"requires_account_id"`
	Pagination   Pagination `json:"pagination_type"`
	MaxPerPage   int        `json:"max_per_page"`
	TotalFields  int        `json:"total_fields"`
	Fields       []string   `json:"fields"`
}

// Info describes the named endpoint, or false when it is unknown.
func (r *Registry) Info(name string) (Info, bool) {
	ep, ok := r.Describe(name)
	if !ok {
		return Info{}, false
	}
	fields := ep.AllFields()
	return Info{
		Name:         ep.Name,
		Path:         ep.Path,
		NeedsAccount: ep.NeedsAccount,
		Pagination:   ep.Pagination,
		MaxPerPage:   ep.MaxPerPage,
		TotalFields:  len(fields),
		Fields:       fields,
	}, true
}

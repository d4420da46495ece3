// Package history issues page-cursor fetches against a paginated
// backend resource and tracks the cursor bookkeeping: current page,
// total known count, and whether more pages exist.
package history

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mmarins/livewire/internal/entity"
)

// TotalUnknown marks a response that omitted its total count.
const TotalUnknown = -1

// Filters narrow a history request to one peer or a search query.
type Filters struct {
	ReceiverID string
	Query      string
}

// PageResult is one page of history as returned by the backend.
// TotalCount is TotalUnknown when the response carried no total.
type PageResult struct {
	Items      []entity.Entity
	TotalCount int
}

// Fetcher is the request/response collaborator a loader calls. Page
// numbering starts at 1.
type Fetcher interface {
	FetchPage(ctx context.Context, page, limit int, f Filters) (*PageResult, error)
}

// Cursor is the pagination bookkeeping for one screen.
type Cursor struct {
	Page       int // highest page applied so far, 0 before the first
	Limit      int
	TotalKnown int // TotalUnknown until a response carries a total
	Loaded     int // items currently in the collection
	HasMore    bool
}

// Loader drives paginated loads for one screen. The fetch itself runs
// wherever the caller likes; Apply is called on the owning context with
// the generation captured at fetch time, so results that became stale
// (superseded by a refresh or teardown) are discarded.
type Loader struct {
	fetcher Fetcher
	limit   int
	filters Filters
	cursor  Cursor
	gen     atomic.Uint64
}

// NewLoader creates a loader with the screen's fixed page limit.
func NewLoader(fetcher Fetcher, limit int) *Loader {
	return &Loader{
		fetcher: fetcher,
		limit:   limit,
		cursor: Cursor{
			Limit:      limit,
			TotalKnown: TotalUnknown,
			// Optimistic before the first successful response.
			HasMore: true,
		},
	}
}

// Cursor returns the current bookkeeping.
func (l *Loader) Cursor() Cursor { return l.cursor }

// Filters returns the active filters.
func (l *Loader) Filters() Filters { return l.filters }

// NextPage returns the page number a load-more should request.
func (l *Loader) NextPage() int { return l.cursor.Page + 1 }

// Generation returns the token a fetch must capture before starting.
func (l *Loader) Generation() uint64 { return l.gen.Load() }

// Invalidate bumps the generation so in-flight results are discarded,
// resets the cursor, and installs new filters. Called on refresh,
// filter/segment change, and teardown.
func (l *Loader) Invalidate(f Filters) uint64 {
	l.filters = f
	l.cursor = Cursor{
		Limit:      l.limit,
		TotalKnown: TotalUnknown,
		HasMore:    true,
	}
	return l.gen.Add(1)
}

// Fetch requests one page. Page numbers start at 1; anything lower is
// rejected before touching the network. f is passed in rather than read
// from the loader: the caller captures it on the owning context along
// with the generation, so a fetch running on another goroutine never
// touches loader state that Invalidate may be rewriting.
func (l *Loader) Fetch(ctx context.Context, page int, f Filters) (*PageResult, error) {
	if page < 1 {
		return nil, fmt.Errorf("page %d out of range, first page is 1", page)
	}
	res, err := l.fetcher.FetchPage(ctx, page, l.limit, f)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}
	return res, nil
}

// Apply folds a fetched page into the cursor. gen is the generation
// captured before the fetch; a mismatch means the result is stale and
// must not be applied. loaded is the collection size after the caller
// merged the page. Reports whether the result was applied.
func (l *Loader) Apply(gen uint64, page int, res *PageResult, loaded int) bool {
	if gen != l.gen.Load() {
		return false
	}
	if page > l.cursor.Page {
		l.cursor.Page = page
	}
	l.cursor.Loaded = loaded
	if res.TotalCount != TotalUnknown {
		l.cursor.TotalKnown = res.TotalCount
	}
	if l.cursor.TotalKnown != TotalUnknown {
		l.cursor.HasMore = loaded < l.cursor.TotalKnown
	} else {
		l.cursor.HasMore = len(res.Items) >= l.limit
	}
	return true
}

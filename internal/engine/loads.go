package engine

import (
	"context"

	"github.com/mmarins/livewire/internal/entity"
	"github.com/mmarins/livewire/internal/history"
	"go.uber.org/zap"
)

// Load fetches page 1 for the first time. The response replaces the
// collection (including any cache warm-start contents).
func (s *Screen) Load(ctx context.Context) {
	s.post(func() {
		if s.flags.IsLoading || s.flags.IsRefreshing {
			return
		}
		s.flags.IsLoading = true
		s.publish()
		s.fetch(ctx, 1)
	})
}

// Refresh supersedes any in-flight load and fetches page 1 again
// (pull-to-refresh). The old generation's results are discarded.
func (s *Screen) Refresh(ctx context.Context) {
	s.post(func() {
		s.loader.Invalidate(s.loader.Filters())
		s.flags.IsRefreshing = true
		s.publish()
		s.fetch(ctx, 1)
	})
}

// SetFilters installs new filters (peer, search query), drops current
// contents, and reloads from page 1. Used on segment or filter change.
func (s *Screen) SetFilters(ctx context.Context, f history.Filters) {
	s.post(func() {
		s.loader.Invalidate(f)
		s.col.Clear()
		s.flags.IsLoading = true
		s.publish()
		s.fetch(ctx, 1)
	})
}

// LoadMore fetches the next page. No-op while another load-more is in
// flight or when the cursor says there is nothing left.
func (s *Screen) LoadMore(ctx context.Context) {
	s.post(func() {
		if s.flags.IsLoadingMore || !s.loader.Cursor().HasMore {
			return
		}
		s.flags.IsLoadingMore = true
		s.publish()
		s.fetch(ctx, s.loader.NextPage())
	})
}

// fetch runs on the owning goroutine; the network call itself happens
// off it. Generation and filters are captured here so the spawned
// goroutine touches no loader state and stale responses never apply.
func (s *Screen) fetch(ctx context.Context, page int) {
	gen := s.loader.Generation()
	filters := s.loader.Filters()
	go func() {
		res, err := s.loader.Fetch(ctx, page, filters)
		s.post(func() { s.applyPage(gen, page, res, err) })
	}()
}

func (s *Screen) applyPage(gen uint64, page int, res *history.PageResult, err error) {
	if gen != s.loader.Generation() {
		// Superseded by a refresh or teardown; flags belong to the new
		// generation now, so leave everything alone.
		return
	}

	if err != nil {
		s.logger.Warn("history load failed", zap.Int("page", page), zap.Error(err))
		s.errMsg = "failed to load history"
		s.clearLoadFlags()
		s.publish()
		return
	}

	if page == 1 {
		s.col.Replace(res.Items)
	} else {
		s.col.Append(res.Items)
	}
	s.loader.Apply(gen, page, res, s.col.Len())
	s.errMsg = ""
	s.clearLoadFlags()
	s.saveToCache(res.Items)
	s.publish()
}

func (s *Screen) clearLoadFlags() {
	s.flags.IsLoading = false
	s.flags.IsLoadingMore = false
	s.flags.IsRefreshing = false
}

// saveToCache writes confirmed entities through to the cache off the
// owning goroutine. Cache failures are logged, never surfaced.
func (s *Screen) saveToCache(items []entity.Entity) {
	if s.cache == nil || len(items) == 0 {
		return
	}
	batch := make([]entity.Entity, 0, len(items))
	for _, e := range items {
		if e.Life() == entity.Confirmed {
			batch = append(batch, e.Clone())
		}
	}
	if len(batch) == 0 {
		return
	}
	go func() {
		if err := s.cache.SaveBatch(s.name, batch); err != nil {
			s.logger.Warn("cache write failed", zap.Error(err))
		}
	}()
}

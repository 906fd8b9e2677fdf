package api

import (
	"context"
	"log/slog"
	"time"

	"gofinances/internal/cache"
	"gofinances/internal/core"
)

const statementKey = "statement"

// CachedSource serves the last fetched statement for ttl before asking the
// wrapped source again. The whole statement is cached, so the list and the
// balance always come from the same read.
type CachedSource struct {
	next  Source
	cache *cache.LRUCache[core.Statement]
}

var _ Source = (*CachedSource)(nil)

func NewCachedSource(next Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		next:  next,
		cache: cache.NewLRUCache[core.Statement](1, ttl),
	}
}

func (s *CachedSource) Fetch(ctx context.Context) (core.Statement, error) {
	if st, ok := s.cache.Get(statementKey); ok {
		slog.DebugContext(ctx, "Statement cache hit", "transactions", len(st.Transactions))
		return copyStatement(st), nil
	}
	st, err := s.next.Fetch(ctx)
	if err != nil {
		return core.Statement{}, err
	}
	s.cache.Set(statementKey, st)
	return copyStatement(st), nil
}

// Invalidate drops the cached statement.
func (s *CachedSource) Invalidate() {
	s.cache.Delete(statementKey)
}

// Cache exposes the underlying cache for cleanup and metrics.
func (s *CachedSource) Cache() *cache.LRUCache[core.Statement] {
	return s.cache
}

func copyStatement(st core.Statement) core.Statement {
	out := st
	out.Transactions = make([]core.Transaction, len(st.Transactions))
	copy(out.Transactions, st.Transactions)
	return out
}

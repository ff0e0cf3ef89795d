package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/everstacklabs/compass/internal/catalog"
	"github.com/everstacklabs/compass/internal/metrics"
	"github.com/everstacklabs/compass/internal/resolve"
	"github.com/everstacklabs/compass/internal/source"
)

// ErrNoCatalog is returned while no catalog has been loaded yet.
var ErrNoCatalog = errors.New("no catalog loaded")

// Options configures a Server.
type Options struct {
	// RefreshInterval forces a refresh this long after the last one.
	RefreshInterval time.Duration
	// StaleDuration refreshes early when the token expires within it.
	StaleDuration time.Duration
	// CheckInterval is how often the refresher wakes up.
	CheckInterval time.Duration
}

// Server answers endpoint lookups from the current catalog. The catalog is
// replaced wholesale on refresh, so readers never see a partial one.
type Server struct {
	src      source.Source
	resolver *resolve.Resolver
	opts     Options
	now      func() time.Time

	current  atomic.Pointer[catalog.ServiceCatalog]
	loadedAt atomic.Int64

	refreshMu sync.Mutex
}

// New creates a Server. Call Refresh or Run before serving.
func New(src source.Source, resolver *resolve.Resolver, opts Options) *Server {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 15 * time.Minute
	}
	if opts.StaleDuration <= 0 {
		opts.StaleDuration = catalog.DefaultStaleDuration
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 10 * time.Second
	}
	return &Server{src: src, resolver: resolver, opts: opts, now: time.Now}
}

// Catalog returns the current catalog, or nil before the first refresh.
func (s *Server) Catalog() *catalog.ServiceCatalog {
	return s.current.Load()
}

// Refresh fetches a new catalog and swaps it in. On failure the previous
// catalog stays in place.
func (s *Server) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	start := time.Now()
	cat, err := s.src.Fetch(ctx)
	metrics.CatalogRefreshDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CatalogRefreshes.WithLabelValues(s.src.Name(), metrics.ResultError).Inc()
		return fmt.Errorf("refreshing catalog from %s: %w", s.src.Name(), err)
	}

	s.current.Store(cat)
	loaded := s.now()
	s.loadedAt.Store(loaded.UnixNano())

	endpoints := 0
	for _, svc := range cat.Services() {
		endpoints += len(svc.Endpoints)
	}
	metrics.CatalogRefreshes.WithLabelValues(s.src.Name(), metrics.ResultOK).Inc()
	metrics.CatalogLoadedAt.Set(float64(loaded.Unix()))
	metrics.CatalogEndpoints.Set(float64(endpoints))
	if exp := cat.Token().ExpiresAt; !exp.IsZero() {
		metrics.TokenExpiresAt.Set(float64(exp.Unix()))
	} else {
		metrics.TokenExpiresAt.Set(0)
	}

	slog.Info("catalog refreshed", "source", s.src.Name(), "services", cat.Len(), "endpoints", endpoints)
	return nil
}

// needsRefresh reports whether the catalog is missing, old, or carries a
// token about to expire.
func (s *Server) needsRefresh(now time.Time) bool {
	cat := s.current.Load()
	if cat == nil {
		return true
	}
	if cat.Token().WillExpireSoon(now, s.opts.StaleDuration) {
		return true
	}
	return now.Sub(time.Unix(0, s.loadedAt.Load())) >= s.opts.RefreshInterval
}

// Run refreshes the catalog until ctx is done. Refresh errors are logged
// and retried on the next tick.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.CheckInterval)
	defer ticker.Stop()

	for {
		if s.needsRefresh(s.now()) {
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("catalog refresh failed, keeping previous catalog", "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ListenAndServe serves the API on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown", "error", err)
		}
	}()

	slog.Info("resolver service starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	slog.Info("resolver service stopped")
	return nil
}

package video

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karaokebar/karaoke-web/internal/blobstore"
	"github.com/karaokebar/karaoke-web/internal/logging"
	"github.com/karaokebar/karaoke-web/internal/remote"
)

// Page identifies which page a Session belongs to.
type Page string

const (
	PageUpload Page = "upload"
	PageCharts Page = "charts"
)

func ParsePage(s string) (Page, error) {
	switch Page(s) {
	case PageUpload, PageCharts:
		return Page(s), nil
	default:
		return "", fmt.Errorf("unknown page %q", s)
	}
}

type sessionKey struct {
	id   string
	page Page
}

func (k sessionKey) owner() string {
	return k.id + "/" + string(k.page)
}

type RegistryConfig struct {
	Client remote.Client
	Store  blobstore.Store
	TTL    time.Duration
	Logger *slog.Logger

	// OnLoading observes every session's loading transitions.
	OnLoading func(loading bool)
}

// Registry hands out independent Sessions per browser session and page and
// releases the ones left idle longer than the TTL.
type Registry struct {
	client    remote.Client
	store     blobstore.Store
	ttl       time.Duration
	logger    *slog.Logger
	onLoading func(bool)
	now       func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

func NewRegistry(cfg RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		client:    cfg.Client,
		store:     cfg.Store,
		ttl:       cfg.TTL,
		logger:    logger,
		onLoading: cfg.OnLoading,
		now:       time.Now,
		sessions:  make(map[sessionKey]*Session),
	}
}

// Get returns the session for id and page, creating it on first use.
func (r *Registry) Get(id string, page Page) *Session {
	key := sessionKey{id: id, page: page}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		return s
	}
	s := NewSession(SessionConfig{
		Owner:     key.owner(),
		Client:    r.client,
		Store:     r.store,
		Logger:    logging.WithSessionID(r.logger, id).With("page", string(page)),
		OnLoading: r.onLoading,
	})
	s.now = r.now
	s.lastUsed = r.now()
	r.sessions[key] = s
	return s
}

// Lookup returns an existing session without creating one.
func (r *Registry) Lookup(id string, page Page) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionKey{id: id, page: page}]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep releases sessions idle for longer than the TTL. Sessions with a
// request in flight are kept. It returns the number released.
func (r *Registry) Sweep(ctx context.Context) int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*Session
	for key, s := range r.sessions {
		if s.Snapshot().Loading() || s.LastUsed().After(cutoff) {
			continue
		}
		expired = append(expired, s)
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	for _, s := range expired {
		if err := s.Release(ctx); err != nil {
			s.logger.Warn("failed to release session", "error", err)
		}
	}
	if len(expired) > 0 {
		r.logger.Info("expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

// ReleaseAll frees every session, used on shutdown.
func (r *Registry) ReleaseAll(ctx context.Context) {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for key, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	for _, s := range all {
		if err := s.Release(ctx); err != nil {
			s.logger.Warn("failed to release session", "error", err)
		}
	}
}

// Run sweeps expired sessions every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

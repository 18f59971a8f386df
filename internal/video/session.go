package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karaokebar/karaoke-web/internal/blobstore"
	"github.com/karaokebar/karaoke-web/internal/logging"
	"github.com/karaokebar/karaoke-web/internal/remote"
)

// ErrReleased is returned by a request that finished after its session expired.
var ErrReleased = errors.New("session released")

var errAborted = errors.New("video request aborted")

// Download describes the file a page offers for saving.
type Download struct {
	URL      string
	Filename string
}

// SessionConfig wires a Session to its collaborators.
type SessionConfig struct {
	Owner  string
	Client remote.Client
	Store  blobstore.Store
	Logger *slog.Logger

	// OnLoading is called with true when a request starts and with false
	// exactly once when it ends, whatever the outcome.
	OnLoading func(loading bool)
}

// Session is one page's video request hook. Each page of each browser
// session owns an independent Session.
type Session struct {
	owner     string
	client    remote.Client
	store     blobstore.Store
	logger    *slog.Logger
	onLoading func(bool)
	now       func() time.Time

	mu       sync.Mutex
	state    State
	lastUsed time.Time
	released bool
}

func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		owner:     cfg.Owner,
		client:    cfg.Client,
		store:     cfg.Store,
		logger:    logging.WithComponent(logger, "video"),
		onLoading: cfg.OnLoading,
		now:       time.Now,
	}
	s.lastUsed = s.now()
	return s
}

// FetchVideoForSong requests a karaoke video for the song and stores the
// result behind a fresh reference URL. A call made while another request of
// this session is loading fails with ErrRequestInFlight and changes nothing.
func (s *Session) FetchVideoForSong(ctx context.Context, songName, artistName string) error {
	req := remote.GenerationRequest{SongName: songName, ArtistName: artistName}

	s.mu.Lock()
	next, err := s.state.Start(req)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	superseded := s.state.URL
	s.state = next
	s.lastUsed = s.now()
	s.mu.Unlock()

	s.notify(true)
	defer func() {
		s.mu.Lock()
		if s.state.Phase == Loading {
			s.state, _ = s.state.Fail(errAborted)
		}
		s.mu.Unlock()
		s.notify(false)
	}()

	if superseded != "" {
		s.revoke(context.WithoutCancel(ctx), superseded)
	}

	video, err := s.client.FetchVideo(ctx, req)
	if err != nil {
		s.fail(err)
		return err
	}

	blob, err := s.store.Create(ctx, s.owner, video.Data, video.ContentType)
	if err != nil {
		err = fmt.Errorf("store video: %w", err)
		s.fail(err)
		return err
	}

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		s.revoke(context.Background(), blob.URL)
		return ErrReleased
	}
	s.state, err = s.state.Succeed(blob.URL)
	s.lastUsed = s.now()
	s.mu.Unlock()
	if err != nil {
		s.revoke(context.Background(), blob.URL)
		return err
	}

	s.logger.Info("karaoke video ready", "size", logging.Size(blob.Size))
	return nil
}

// HandleDownload returns the file to save for the current result and clears
// the completion flag.
func (s *Session) HandleDownload(songName, artistName string) (Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.state.Download()
	if err != nil {
		return Download{}, err
	}
	s.state = next
	s.lastUsed = s.now()

	return Download{URL: next.URL, Filename: FileName(songName, artistName)}, nil
}

// HandleCloseModal dismisses the result and releases its reference URL.
func (s *Session) HandleCloseModal(ctx context.Context) error {
	s.mu.Lock()
	url := s.state.URL
	next, err := s.state.Close()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next
	s.lastUsed = s.now()
	s.mu.Unlock()

	if url == "" {
		return nil
	}
	if err := s.store.Revoke(ctx, url); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("revoke result: %w", err)
	}
	return nil
}

// Acknowledge clears a failure once it has been shown to the user.
func (s *Session) Acknowledge() {
	s.mu.Lock()
	s.state = s.state.Acknowledge()
	s.mu.Unlock()
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Release forgets the session's result and frees every blob it owns.
// A request still loading is left to finish and discards its own result.
func (s *Session) Release(ctx context.Context) error {
	s.mu.Lock()
	s.released = true
	if s.state.Phase != Loading {
		s.state = State{}
	}
	s.mu.Unlock()

	n, err := s.store.RevokeOwner(ctx, s.owner)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Debug("session released", "blobs", n)
	}
	return nil
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state, _ = s.state.Fail(err)
	s.mu.Unlock()

	level := slog.LevelWarn
	var transportErr *remote.TransportError
	if errors.As(err, &transportErr) && transportErr.IsServerError() {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "karaoke video request failed", "error", err)
}

func (s *Session) revoke(ctx context.Context, url string) {
	if err := s.store.Revoke(ctx, url); err != nil {
		s.logger.Warn("failed to revoke reference url", "url", url, "error", err)
	}
}

func (s *Session) notify(loading bool) {
	if s.onLoading != nil {
		s.onLoading(loading)
	}
}

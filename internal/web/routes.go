package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/karaokebar/karaoke-web/internal/blobstore"
	"github.com/karaokebar/karaoke-web/internal/chart"
	"github.com/karaokebar/karaoke-web/internal/remote"
	"github.com/karaokebar/karaoke-web/internal/video"
)

var pagePaths = map[video.Page]string{
	video.PageUpload: "/",
	video.PageCharts: "/charts",
}

func NewRouter(cfg ServerConfig) (*chi.Mux, error) {
	tmpl, err := parsePages()
	if err != nil {
		return nil, err
	}
	if cfg.ChartLimit <= 0 {
		cfg.ChartLimit = chart.DefaultLimit
	}
	if cfg.Theme == (Theme{}) {
		cfg.Theme = DefaultTheme
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware())

		r.Get("/", uploadPageHandler(cfg, tmpl))
		r.Post("/generate", generateHandler(cfg, tmpl))
		r.Get("/charts", chartsPageHandler(cfg, tmpl))
		r.Post("/charts/generate", chartGenerateHandler(cfg, tmpl))
		r.Post("/close/{page}", closeHandler(cfg))

		r.Group(func(r chi.Router) {
			r.Use(LoopbackGuard())
			r.Get("/download/{page}", downloadHandler(cfg))
			r.Get("/blobs/{id}", blobHandler(cfg))
			r.Head("/blobs/{id}", blobHandler(cfg))
		})

		r.Get("/api/chart", chartAPIHandler(cfg))
		r.Get("/api/session/{page}", sessionAPIHandler(cfg))
	})

	return r, nil
}

type chartView struct {
	Entries []chart.Entry
	Err     string
	ErrKind string
}

type pageData struct {
	Title      string
	Page       video.Page
	Nav        []navLink
	Theme      Theme
	State      video.State
	Alert      string
	SongName   string
	ArtistName string
	Chart      chartView
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		blobs, _ := cfg.Store.Count(ctx)
		size, _ := cfg.Store.Bytes(ctx)

		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:    "ok",
			Version:   cfg.Version,
			UptimeS:   int64(time.Since(cfg.StartTime).Seconds()),
			Sessions:  cfg.Registry.Len(),
			Blobs:     blobs,
			BlobBytes: size,
		})
	}
}

func uploadPageHandler(cfg ServerConfig, tmpl *pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderPage(w, r, cfg, tmpl, video.PageUpload, http.StatusOK, "")
	}
}

func chartsPageHandler(cfg ServerConfig, tmpl *pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderPage(w, r, cfg, tmpl, video.PageCharts, http.StatusOK, "")
	}
}

func generateHandler(cfg ServerConfig, tmpl *pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid form", "BAD_REQUEST")
			return
		}
		// Empty names are forwarded as typed.
		song := r.PostForm.Get("song_name")
		artist := r.PostForm.Get("artist_name")

		generate(w, r, cfg, tmpl, video.PageUpload, song, artist)
	}
}

func chartGenerateHandler(cfg ServerConfig, tmpl *pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid form", "BAD_REQUEST")
			return
		}
		song, artist := chart.SplitLabel(r.PostForm.Get("label"))

		generate(w, r, cfg, tmpl, video.PageCharts, song, artist)
	}
}

func generate(w http.ResponseWriter, r *http.Request, cfg ServerConfig, tmpl *pages, page video.Page, song, artist string) {
	sess := cfg.Registry.Get(SessionID(r), page)

	// The generation outlives a closed tab; the client timeout bounds it.
	ctx := context.WithoutCancel(r.Context())
	err := sess.FetchVideoForSong(ctx, song, artist)
	if errors.Is(err, video.ErrRequestInFlight) {
		renderPage(w, r, cfg, tmpl, page, http.StatusConflict, "A karaoke video is already being generated. Please wait for it to finish.")
		return
	}
	// Other failures are stored in the session and shown after the redirect.
	http.Redirect(w, r, pagePaths[page], http.StatusSeeOther)
}

func downloadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, page, ok := lookupSession(w, r, cfg)
		if !ok {
			return
		}

		req := sess.Snapshot().Request
		dl, err := sess.HandleDownload(req.SongName, req.ArtistName)
		if errors.Is(err, video.ErrNoResult) {
			WriteError(w, http.StatusNotFound, "no generated video to download", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		serveReference(w, r, cfg, dl.URL, dl.Filename)
		cfg.Logger.Debug("video downloaded", "page", page, "filename", dl.Filename)
	}
}

func closeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := video.ParsePage(chi.URLParam(r, "page"))
		if err != nil {
			WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
			return
		}

		if sess, ok := cfg.Registry.Lookup(SessionID(r), page); ok {
			if err := sess.HandleCloseModal(r.Context()); err != nil {
				if errors.Is(err, video.ErrInvalidTransition) {
					WriteError(w, http.StatusConflict, "a video is still being generated", "CONFLICT")
					return
				}
				WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
				return
			}
		}

		http.Redirect(w, r, pagePaths[page], http.StatusSeeOther)
	}
}

func blobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveReference(w, r, cfg, blobstore.URLPrefix+chi.URLParam(r, "id"), "")
	}
}

// serveReference serves a reference URL owned by the caller's browser session.
func serveReference(w http.ResponseWriter, r *http.Request, cfg ServerConfig, url, attachmentName string) {
	id, ok := blobstore.IDFromURL(url)
	if !ok {
		WriteError(w, http.StatusNotFound, "video not found", "NOT_FOUND")
		return
	}

	blob, err := cfg.Store.Open(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to read video", "INTERNAL_ERROR")
		return
	}
	if blob == nil || !ownedBy(blob.Owner, SessionID(r)) {
		WriteError(w, http.StatusNotFound, "video not found", "NOT_FOUND")
		return
	}

	if err := cfg.PlaybackServer.ServeBlob(w, r, blob, attachmentName); err != nil {
		cfg.Logger.Error("playback error", "error", err, "blob_id", id)
	}
}

func ownedBy(owner, sessionID string) bool {
	for _, page := range []video.Page{video.PageUpload, video.PageCharts} {
		if owner == sessionID+"/"+string(page) {
			return true
		}
	}
	return false
}

func chartAPIHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := cfg.Client.FetchChart(r.Context())
		if err != nil {
			msg, kind := chartError(err)
			code := "UPSTREAM_ERROR"
			if kind == "payload" {
				code = "BAD_PAYLOAD"
			}
			WriteError(w, http.StatusBadGateway, msg, code)
			return
		}
		WriteJSON(w, http.StatusOK, ChartResponse{Entries: chart.Rank(counts, cfg.ChartLimit)})
	}
}

func sessionAPIHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := video.ParsePage(chi.URLParam(r, "page"))
		if err != nil {
			WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
			return
		}

		var state video.State
		if sess, ok := cfg.Registry.Lookup(SessionID(r), page); ok {
			state = sess.Snapshot()
		}
		WriteJSON(w, http.StatusOK, StateToResponse(page, state))
	}
}

func lookupSession(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (*video.Session, video.Page, bool) {
	page, err := video.ParsePage(chi.URLParam(r, "page"))
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
		return nil, "", false
	}
	sess, ok := cfg.Registry.Lookup(SessionID(r), page)
	if !ok {
		WriteError(w, http.StatusNotFound, "no generated video to download", "NOT_FOUND")
		return nil, "", false
	}
	return sess, page, true
}

func renderPage(w http.ResponseWriter, r *http.Request, cfg ServerConfig, tmpl *pages, page video.Page, status int, alert string) {
	sess := cfg.Registry.Get(SessionID(r), page)
	state := sess.Snapshot()

	data := pageData{
		Page:       page,
		Nav:        navFor(pagePaths[page]),
		Theme:      cfg.Theme,
		State:      state,
		Alert:      alert,
		SongName:   state.Request.SongName,
		ArtistName: state.Request.ArtistName,
	}

	if state.Phase == video.Failed && alert == "" {
		data.Alert = "Error: " + state.Err.Error()
	}

	switch page {
	case video.PageUpload:
		data.Title = "Home"
	case video.PageCharts:
		data.Title = "Charts"
		data.Chart = loadChart(r.Context(), cfg)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.render(w, string(page), data); err != nil {
		cfg.Logger.Error("failed to render page", "page", page, "error", err)
		return
	}

	if state.Phase == video.Failed {
		sess.Acknowledge()
	}
}

func loadChart(ctx context.Context, cfg ServerConfig) chartView {
	counts, err := cfg.Client.FetchChart(ctx)
	if err != nil {
		cfg.Logger.Warn("failed to fetch chart", "error", err)
		msg, kind := chartError(err)
		return chartView{Err: msg, ErrKind: kind}
	}
	return chartView{Entries: chart.Rank(counts, cfg.ChartLimit)}
}

// chartError returns a user-facing message and whether the failure was in
// the transport or the payload.
func chartError(err error) (string, string) {
	var payloadErr *remote.PayloadError
	if errors.As(err, &payloadErr) {
		return "The chart returned by the karaoke service could not be read.", "payload"
	}
	var transportErr *remote.TransportError
	if errors.As(err, &transportErr) && transportErr.StatusCode != 0 {
		return fmt.Sprintf("Could not load the chart (HTTP %d).", transportErr.StatusCode), "transport"
	}
	return "Could not reach the karaoke service.", "transport"
}

package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/karaokebar/karaoke-web/internal/blobstore"
	"github.com/karaokebar/karaoke-web/internal/chart"
	"github.com/karaokebar/karaoke-web/internal/db"
	"github.com/karaokebar/karaoke-web/internal/playback"
	"github.com/karaokebar/karaoke-web/internal/remote"
	"github.com/karaokebar/karaoke-web/internal/video"
)

type fakeRemote struct {
	mu       sync.Mutex
	counts   map[string]int64
	chartErr error
	videoErr error
	requests []remote.GenerationRequest
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeRemote) FetchChart(ctx context.Context) (map[string]int64, error) {
	if f.chartErr != nil {
		return nil, f.chartErr
	}
	return f.counts, nil
}

func (f *fakeRemote) FetchVideo(ctx context.Context, req remote.GenerationRequest) (*remote.Video, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.videoErr != nil {
		return nil, f.videoErr
	}
	return &remote.Video{Data: []byte("video:" + req.SongName + "/" + req.ArtistName), ContentType: "video/mp4"}, nil
}

func (f *fakeRemote) lastRequest() remote.GenerationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return remote.GenerationRequest{}
	}
	return f.requests[len(f.requests)-1]
}

type testEnv struct {
	server   *httptest.Server
	client   *http.Client
	remote   *fakeRemote
	registry *video.Registry
	store    *blobstore.SQLiteStore
}

func newTestEnv(t *testing.T, fr *fakeRemote) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	database, err := db.New("file::memory:", nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store := blobstore.NewStore(database.Conn())
	registry := video.NewRegistry(video.RegistryConfig{Client: fr, Store: store, TTL: time.Hour, Logger: logger})

	router, err := NewRouter(ServerConfig{
		Version:        "test",
		Client:         fr,
		Registry:       registry,
		Store:          store,
		PlaybackServer: playback.NewServer(logger),
		Logger:         logger,
		StartTime:      time.Now(),
	})
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	jar, _ := cookiejar.New(nil)
	return &testEnv{
		server:   server,
		client:   &http.Client{Jar: jar},
		remote:   fr,
		registry: registry,
		store:    store,
	}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (e *testEnv) session(t *testing.T, page video.Page) SessionResponse {
	t.Helper()
	_, body := e.get(t, "/api/session/"+string(page))
	var s SessionResponse
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		t.Fatalf("decode session: %v (%s)", err, body)
	}
	return s
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{})

	resp, body := env.get(t, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var h HealthResponse
	if err := json.Unmarshal([]byte(body), &h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != "ok" || h.Version != "test" {
		t.Errorf("health = %+v", h)
	}
}

func TestUploadPage_RendersShell(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{})

	resp, body := env.get(t, "/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{"Karaoke Bar", `href="/charts"`, `name="song_name"`, `name="artist_name"`, "#863fb5"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if resp.Header.Get("Content-Type") != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
}

func TestGenerate_SuccessShowsDialogAndPreview(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{})

	resp, body := env.post(t, "/generate", url.Values{"song_name": {"Imagine"}, "artist_name": {"Lennon"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status after redirect = %d", resp.StatusCode)
	}
	if got := env.remote.lastRequest(); got.SongName != "Imagine" || got.ArtistName != "Lennon" {
		t.Errorf("remote request = %+v", got)
	}

	s := env.session(t, video.PageUpload)
	if !s.Complete || s.URL == "" || s.Loading {
		t.Fatalf("session = %+v", s)
	}
	if !strings.Contains(body, `src="`+s.URL+`"`) {
		t.Error("result dialog does not preview the reference url")
	}

	previewResp, preview := env.get(t, s.URL)
	if previewResp.StatusCode != http.StatusOK || preview != "video:Imagine/Lennon" {
		t.Errorf("preview = %d %q", previewResp.StatusCode, preview)
	}
}

func TestGenerate_EmptyFieldsForwarded(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{})

	env.post(t, "/generate", url.Values{})

	if got := env.remote.lastRequest(); got != (remote.GenerationRequest{}) {
		t.Errorf("remote request = %+v, want empty strings", got)
	}
}

func TestGenerate_FailureAlertsOnce(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{
		videoErr: &remote.TransportError{Op: "fetch video", StatusCode: http.StatusNotFound, Body: "Lyrics not found"},
	})

	_, body := env.post(t, "/generate", url.Values{"song_name": {"x"}, "artist_name": {"y"}})
	if !strings.Contains(body, "alert(") || !strings.Contains(body, "Lyrics not found") {
		t.Fatal("failure was not surfaced as an alert")
	}

	_, again := env.get(t, "/")
	if strings.Contains(again, "alert(") {
		t.Error("alert shown twice")
	}
	if s := env.session(t, video.PageUpload); s.Phase != "idle" || s.Loading {
		t.Errorf("session after alert = %+v", s)
	}
}

func TestGenerate_RejectsWhileLoading(t *testing.T) {
	fr := &fakeRemote{block: make(chan struct{}), started: make(chan struct{}, 1)}
	env := newTestEnv(t, fr)
	env.get(t, "/")

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := env.client.PostForm(env.server.URL+"/generate", url.Values{"song_name": {"slow"}, "artist_name": {"a"}})
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-fr.started

	resp, body := env.post(t, "/generate", url.Values{"song_name": {"second"}, "artist_name": {"b"}})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	if !strings.Contains(body, "already being generated") {
		t.Error("conflict page missing alert")
	}
	if !strings.Contains(body, "disabled>Generate") {
		t.Error("generate button not disabled while loading")
	}

	close(fr.block)
	<-done

	fr.mu.Lock()
	calls := len(fr.requests)
	fr.mu.Unlock()
	if calls != 1 {
		t.Errorf("remote called %d times, want 1", calls)
	}
}

func TestDownload_AttachmentAndClearsComplete(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{})
	env.post(t, "/generate", url.Values{"song_name": {"Imagine"}, "artist_name": {"Lennon"}})

	resp, body := env.get(t, "/download/upload")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Disposition"); got != "attachment; filename=Imagine-Lennon.mp4" {
		t.Errorf("Content-Disposition = %q", got)
	}
	if body != "video:Imagine/Lennon" {
		t.Errorf("body = %q", body)
	}

	if s := env.session(t, video.PageUpload); s.Complete {
		t.Error("complete still set after download")
	}
}

func TestDownload_NoResult(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{})

	resp, _ := env.get(t, "/download/upload")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	resp, _ = env.get(t, "/download/admin")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown page status = %d, want 404", resp.StatusCode)
	}
}

func TestClose_RevokesReferenceURL(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{})
	env.post(t, "/generate", url.Values{"song_name": {"Imagine"}, "artist_name": {"Lennon"}})
	ref := env.session(t, video.PageUpload).URL

	resp, body := env.post(t, "/close/upload", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status after redirect = %d", resp.StatusCode)
	}
	if strings.Contains(body, "<video") {
		t.Error("dialog still rendered after close")
	}

	s := env.session(t, video.PageUpload)
	if s.Complete || s.URL != "" {
		t.Errorf("session after close = %+v", s)
	}

	gone, _ := env.get(t, ref)
	if gone.StatusCode != http.StatusNotFound {
		t.Errorf("revoked url status = %d, want 404", gone.StatusCode)
	}
	if n, _ := env.store.Count(context.Background()); n != 0 {
		t.Errorf("blobs after close = %d, want 0", n)
	}
}

func TestBlob_OtherBrowserCannotRead(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{})
	env.post(t, "/generate", url.Values{"song_name": {"a"}, "artist_name": {"b"}})
	ref := env.session(t, video.PageUpload).URL

	resp, err := http.Get(env.server.URL + ref)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for another session", resp.StatusCode)
	}
}

func TestBlob_RangeRequest(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{})
	env.post(t, "/generate", url.Values{"song_name": {"a"}, "artist_name": {"b"}})
	ref := env.session(t, video.PageUpload).URL

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+ref, nil)
	req.Header.Set("Range", "bytes=0-4")
	resp, err := env.client.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusPartialContent || string(body) != "video" {
		t.Errorf("range = %d %q", resp.StatusCode, body)
	}
}

func TestChartsPage_RendersRankedList(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{counts: map[string]int64{"A - X": 5, "B - Y": 1200}})

	resp, body := env.get(t, "/charts")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	b := strings.Index(body, `value="B - Y"`)
	a := strings.Index(body, `value="A - X"`)
	if a < 0 || b < 0 || b > a {
		t.Errorf("entries missing or out of order (A at %d, B at %d)", a, b)
	}
	if !strings.Contains(body, "1,200 downloads") {
		t.Error("download count not formatted")
	}
}

func TestChartsPage_DistinctErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind string
	}{
		{"transport", &remote.TransportError{Op: "fetch chart", StatusCode: http.StatusBadGateway}, "transport"},
		{"network", &remote.TransportError{Op: "fetch chart", Err: errors.New("dial tcp: refused")}, "transport"},
		{"payload", &remote.PayloadError{Op: "fetch chart", Err: chart.ErrMalformed}, "payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &fakeRemote{chartErr: tt.err})

			_, body := env.get(t, "/charts")
			if !strings.Contains(body, `data-error-kind="`+tt.wantKind+`"`) {
				t.Errorf("page missing error kind %q", tt.wantKind)
			}
			if strings.Contains(body, `class="chart"`) {
				t.Error("list rendered alongside error")
			}
		})
	}
}

func TestChartGenerate_SplitsLabel(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{counts: map[string]int64{"Imagine - John Lennon": 3}})

	env.post(t, "/charts/generate", url.Values{"label": {"Imagine - John Lennon"}})

	if got := env.remote.lastRequest(); got.SongName != "Imagine" || got.ArtistName != "John Lennon" {
		t.Errorf("remote request = %+v", got)
	}

	if s := env.session(t, video.PageCharts); !s.Complete {
		t.Error("charts session not complete")
	}
	if s := env.session(t, video.PageUpload); s.Phase != "idle" {
		t.Errorf("upload session affected by charts page: %+v", s)
	}

	resp, _ := env.get(t, "/download/charts")
	if got := resp.Header.Get("Content-Disposition"); got != `attachment; filename="Imagine-John Lennon.mp4"` {
		t.Errorf("Content-Disposition = %q", got)
	}
}

func TestChartAPI(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{counts: map[string]int64{"A - X": 5, "B - Y": 10}})

	resp, body := env.get(t, "/api/chart")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got ChartResponse
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []chart.Entry{{Song: "B - Y", Downloads: 10}, {Song: "A - X", Downloads: 5}}
	if len(got.Entries) != 2 || got.Entries[0] != want[0] || got.Entries[1] != want[1] {
		t.Errorf("entries = %+v, want %+v", got.Entries, want)
	}
}

func TestChartAPI_PayloadError(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{chartErr: &remote.PayloadError{Op: "fetch chart", Err: chart.ErrMalformed}})

	resp, body := env.get(t, "/api/chart")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	var e ErrorResponse
	json.Unmarshal([]byte(body), &e)
	if e.Code != "BAD_PAYLOAD" {
		t.Errorf("code = %q, want BAD_PAYLOAD", e.Code)
	}
}

func TestSessionAPI_UnknownPage(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{})

	resp, _ := env.get(t, "/api/session/nope")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

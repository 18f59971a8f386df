// Package remote talks to the karaoke video generation service.
package remote

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/karaokebar/karaoke-web/internal/chart"
	"github.com/karaokebar/karaoke-web/internal/logging"
)

const (
	// SkipWarningHeader suppresses the tunnel proxy's interstitial page.
	SkipWarningHeader = "ngrok-skip-browser-warning"
	RequestIDHeader   = "X-Karaoke-Request-Id"

	VideoContentType = "video/mp4"

	maxChartBytes = 1 << 20
	maxErrorBytes = 4096
)

// ErrEmptyVideo is returned when the service answers 2xx with no body.
var ErrEmptyVideo = errors.New("empty video payload")

// ErrVideoTooLarge is returned when the payload exceeds the configured cap.
var ErrVideoTooLarge = errors.New("video payload exceeds size limit")

// GenerationRequest names the song a karaoke video is generated for.
type GenerationRequest struct {
	SongName   string `json:"song_name"`
	ArtistName string `json:"artist_name"`
}

// Video is a generated karaoke video held in memory.
type Video struct {
	Data        []byte
	ContentType string
}

type Client interface {
	FetchChart(ctx context.Context) (map[string]int64, error)
	FetchVideo(ctx context.Context, req GenerationRequest) (*Video, error)
}

// HTTPClient is the real client for the remote video generation service.
type HTTPClient struct {
	baseURL       string
	maxVideoBytes int64
	httpClient    *http.Client
	logger        *slog.Logger
}

type Options struct {
	BaseURL       string
	Timeout       time.Duration
	MaxVideoBytes int64
	Logger        *slog.Logger
}

func NewHTTPClient(opts Options) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPClient{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		maxVideoBytes: opts.MaxVideoBytes,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logging.WithComponent(opts.Logger, "remote"),
	}
}

// FetchChart downloads the song label -> download count mapping.
func (c *HTTPClient) FetchChart(ctx context.Context) (map[string]int64, error) {
	const op = "fetch chart"

	req, err := c.newRequest(ctx, c.baseURL+"/chart")
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	// Read the body as text first so a broken connection is reported as a
	// transport failure and only a complete body can be a payload failure.
	text, err := io.ReadAll(io.LimitReader(resp.Body, maxChartBytes+1))
	if err != nil {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if len(text) > maxChartBytes {
		return nil, &PayloadError{Op: op, Err: fmt.Errorf("chart larger than %d bytes", maxChartBytes)}
	}

	counts, err := chart.Decode(text)
	if err != nil {
		c.logger.Warn("chart payload rejected", "error", err, "body_bytes", len(text))
		return nil, &PayloadError{Op: op, Err: err}
	}

	c.logger.Debug("chart fetched", "songs", len(counts))
	return counts, nil
}

// FetchVideo asks the service to generate a karaoke video and returns the
// binary payload.
func (c *HTTPClient) FetchVideo(ctx context.Context, gen GenerationRequest) (*Video, error) {
	const op = "fetch video"

	q := url.Values{}
	q.Set("song_name", gen.SongName)
	q.Set("artist_name", gen.ArtistName)
	endpoint := c.baseURL + "/song/?" + q.Encode()

	req, err := c.newRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "video/mp4;charset=UTF-8")
	req.Header.Set("Accept-Ranges", "bytes")

	start := time.Now()
	c.logger.Info("requesting karaoke video",
		"url", logging.SanitizeURL(endpoint),
		"request_id", req.Header.Get(RequestIDHeader),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var reader io.Reader = resp.Body
	if c.maxVideoBytes > 0 {
		reader = io.LimitReader(resp.Body, c.maxVideoBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if c.maxVideoBytes > 0 && int64(len(data)) > c.maxVideoBytes {
		return nil, &PayloadError{Op: op, Err: ErrVideoTooLarge}
	}
	if len(data) == 0 {
		return nil, &PayloadError{Op: op, Err: ErrEmptyVideo}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = VideoContentType
	}

	c.logger.Info("karaoke video received",
		"size", logging.Size(int64(len(data))),
		"content_type", contentType,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Video{Data: data, ContentType: contentType}, nil
}

func (c *HTTPClient) newRequest(ctx context.Context, endpoint string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(SkipWarningHeader, "true")
	req.Header.Set(RequestIDHeader, generateRequestID())
	return req, nil
}

func generateRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}

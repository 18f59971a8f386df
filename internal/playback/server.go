// Package playback serves generated videos from memory with byte-range
// support so the preview player can seek.
package playback

import (
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/karaokebar/karaoke-web/internal/blobstore"
)

type PlaybackService interface {
	ServeBlob(w http.ResponseWriter, r *http.Request, blob *blobstore.Blob, attachmentName string) error
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// ServeBlob writes blob to w, honouring a single Range request. When
// attachmentName is set the response asks the browser to save the file.
func (s *Server) ServeBlob(w http.ResponseWriter, r *http.Request, blob *blobstore.Blob, attachmentName string) error {
	if blob == nil {
		http.Error(w, "video not found", http.StatusNotFound)
		return nil
	}

	size := int64(len(blob.Data))
	contentType := blob.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, no-store")
	if attachmentName != "" {
		w.Header().Set("Content-Disposition", ContentDisposition(attachmentName))
	}

	parsedRange, err := ParseRange(r.Header.Get("Range"), size)

	if err == ErrUnsatisfiable {
		w.Header().Set("Content-Range", UnsatisfiedContentRange(size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	if err != nil && err != ErrInvalidRange {
		return err
	}

	body := blob.Data
	status := http.StatusOK
	if parsedRange != nil {
		body = parsedRange.Slice(blob.Data)
		status = http.StatusPartialContent
		w.Header().Set("Content-Range", parsedRange.ContentRange(size))
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("client went away during playback", "blob_id", blob.ID, "error", err)
	}
	return nil
}

// ContentDisposition builds an attachment header for name, falling back to
// RFC 2231 encoding for non-ASCII names.
func ContentDisposition(name string) string {
	v := mime.FormatMediaType("attachment", map[string]string{"filename": name})
	if v == "" {
		return "attachment"
	}
	return v
}

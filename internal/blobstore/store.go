// Package blobstore holds generated videos behind short-lived reference URLs,
// the server-side counterpart of a browser object URL.
package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// URLPrefix is the path under which reference URLs are served.
const URLPrefix = "/blobs/"

// ErrNotFound is returned when revoking a URL that is unknown or already revoked.
var ErrNotFound = errors.New("blob not found")

type Blob struct {
	ID          string
	URL         string
	Owner       string
	ContentType string
	Size        int64
	Data        []byte
	CreatedAt   time.Time
}

type Store interface {
	Create(ctx context.Context, owner string, data []byte, contentType string) (*Blob, error)
	Open(ctx context.Context, id string) (*Blob, error)
	Revoke(ctx context.Context, url string) error
	RevokeOwner(ctx context.Context, owner string) (int, error)
	Count(ctx context.Context) (int, error)
	Bytes(ctx context.Context) (int64, error)
}

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Create stores data and mints a new reference URL for it.
func (s *SQLiteStore) Create(ctx context.Context, owner string, data []byte, contentType string) (*Blob, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generate blob id: %w", err)
	}

	b := &Blob{
		ID:          id.String(),
		URL:         URLPrefix + id.String(),
		Owner:       owner,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
		CreatedAt:   s.now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blobs (id, owner, content_type, size, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, b.ID, b.Owner, b.ContentType, b.Size, b.Data, b.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert blob: %w", err)
	}
	return b, nil
}

// Open returns the blob with the given id, or nil if it does not exist.
func (s *SQLiteStore) Open(ctx context.Context, id string) (*Blob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, content_type, size, data, created_at
		FROM blobs WHERE id = ?
	`, id)

	var b Blob
	var createdAt string
	err := row.Scan(&b.ID, &b.Owner, &b.ContentType, &b.Size, &b.Data, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.URL = URLPrefix + b.ID
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &b, nil
}

// Revoke releases the blob behind url. Each URL can be revoked once.
func (s *SQLiteStore) Revoke(ctx context.Context, url string) error {
	id, ok := IDFromURL(url)
	if !ok {
		return fmt.Errorf("%w: %q is not a reference URL", ErrNotFound, url)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeOwner releases every blob created for owner.
func (s *SQLiteStore) RevokeOwner(ctx context.Context, owner string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE owner = ?`, owner)
	if err != nil {
		return 0, fmt.Errorf("delete owner blobs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blobs`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Bytes(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM blobs`).Scan(&n)
	return n, err
}

// IDFromURL extracts the blob id from a reference URL.
func IDFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, URLPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(url, URLPrefix)
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

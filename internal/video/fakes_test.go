package video

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/karaokebar/karaoke-web/internal/blobstore"
	"github.com/karaokebar/karaoke-web/internal/remote"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClient struct {
	mu      sync.Mutex
	video   *remote.Video
	err     error
	calls   []remote.GenerationRequest
	block   chan struct{}
	started chan struct{}
}

func (f *fakeClient) FetchChart(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (f *fakeClient) FetchVideo(ctx context.Context, req remote.GenerationRequest) (*remote.Video, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, &remote.TransportError{Op: "fetch video", Err: ctx.Err()}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.video != nil {
		return f.video, nil
	}
	return &remote.Video{Data: []byte("mp4:" + req.SongName), ContentType: "video/mp4"}, nil
}

type fakeStore struct {
	mu      sync.Mutex
	next    int
	blobs   map[string]*blobstore.Blob
	revoked map[string]int
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: map[string]*blobstore.Blob{}, revoked: map[string]int{}}
}

func (f *fakeStore) Create(ctx context.Context, owner string, data []byte, contentType string) (*blobstore.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.next++
	id := fmt.Sprintf("blob-%d", f.next)
	b := &blobstore.Blob{ID: id, URL: blobstore.URLPrefix + id, Owner: owner, ContentType: contentType, Size: int64(len(data)), Data: data}
	f.blobs[b.URL] = b
	return b, nil
}

func (f *fakeStore) Open(ctx context.Context, id string) (*blobstore.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blobs[blobstore.URLPrefix+id], nil
}

func (f *fakeStore) Revoke(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[url]++
	if _, ok := f.blobs[url]; !ok {
		return blobstore.ErrNotFound
	}
	delete(f.blobs, url)
	return nil
}

func (f *fakeStore) RevokeOwner(ctx context.Context, owner string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for url, b := range f.blobs {
		if b.Owner == owner {
			delete(f.blobs, url)
			f.revoked[url]++
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs), nil
}

func (f *fakeStore) Bytes(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, b := range f.blobs {
		n += b.Size
	}
	return n, nil
}

func (f *fakeStore) revokeCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[url]
}

func (f *fakeStore) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs)
}

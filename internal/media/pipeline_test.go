package media

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

type failingStore struct {
	*MemoryStore
	putErr    error
	existsErr error
	drop      bool
}

func (f *failingStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	if f.drop {
		return nil
	}
	return f.MemoryStore.Put(ctx, key, data, contentType)
}

func (f *failingStore) Exists(ctx context.Context, key string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.MemoryStore.Exists(ctx, key)
}

func newTestPipeline() (*Pipeline, *MemoryStore) {
	objects := NewMemoryStore("https://media.example/missing-people-images")
	return NewPipeline(objects, 0), objects
}

func requireIngestionError(t *testing.T, err error, reason string) *IngestionError {
	t.Helper()
	var ierr *IngestionError
	require.True(t, errors.As(err, &ierr), "expected IngestionError, got %v", err)
	assert.Equal(t, reason, ierr.Reason)
	return ierr
}

// ============================================
// Ingest Tests
// ============================================

func TestPipeline_Ingest_Success(t *testing.T) {
	pipeline, objects := newTestPipeline()

	loc, err := pipeline.Ingest(context.Background(), pngBytes, "Holiday Photo.PNG")

	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(loc.Key, ".png"))
	assert.NotContains(t, loc.Key, "Holiday")
	assert.Equal(t, "https://media.example/missing-people-images/"+loc.Key, loc.URL)

	data, contentType, ok := objects.Get(loc.Key)
	require.True(t, ok)
	assert.Equal(t, pngBytes, data)
	assert.Equal(t, "image/png", contentType)
}

func TestPipeline_Ingest_KeysAreUnique(t *testing.T) {
	pipeline, objects := newTestPipeline()
	ctx := context.Background()

	a, err := pipeline.Ingest(ctx, pngBytes, "same.png")
	require.NoError(t, err)
	b, err := pipeline.Ingest(ctx, pngBytes, "same.png")
	require.NoError(t, err)

	assert.NotEqual(t, a.Key, b.Key)
	assert.Equal(t, 2, objects.Len())
}

func TestPipeline_Ingest_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		reason string
	}{
		{"empty payload", nil, ReasonEmpty},
		{"too large", append(append([]byte{}, pngBytes...), make([]byte, DefaultMaxBytes)...), ReasonTooLarge},
		{"not an image", []byte("%PDF-1.4 not a picture"), ReasonUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline, objects := newTestPipeline()

			loc, err := pipeline.Ingest(context.Background(), tt.data, "x.png")

			ierr := requireIngestionError(t, err, tt.reason)
			assert.Empty(t, ierr.Key)
			assert.Empty(t, loc.URL)
			assert.Zero(t, objects.Len())
		})
	}
}

func TestPipeline_Ingest_UploadFailure(t *testing.T) {
	objects := &failingStore{MemoryStore: NewMemoryStore(""), putErr: errors.New("quota exceeded")}
	pipeline := NewPipeline(objects, 0)

	_, err := pipeline.Ingest(context.Background(), pngBytes, "a.png")

	ierr := requireIngestionError(t, err, ReasonUpload)
	assert.NotEmpty(t, ierr.Key)
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestPipeline_Ingest_NotResolvable(t *testing.T) {
	objects := &failingStore{MemoryStore: NewMemoryStore(""), drop: true}
	pipeline := NewPipeline(objects, 0)

	_, err := pipeline.Ingest(context.Background(), pngBytes, "a.png")

	requireIngestionError(t, err, ReasonUnresolved)
}

func TestPipeline_Ingest_ExistsError(t *testing.T) {
	objects := &failingStore{MemoryStore: NewMemoryStore(""), existsErr: errors.New("timeout")}
	pipeline := NewPipeline(objects, 0)

	_, err := pipeline.Ingest(context.Background(), pngBytes, "a.png")

	requireIngestionError(t, err, ReasonUnresolved)
}

func TestExtensionHint(t *testing.T) {
	tests := []struct {
		filename    string
		contentType string
		want        string
	}{
		{"photo.JPG", "image/jpeg", ".jpg"},
		{"photo.jpeg", "image/jpeg", ".jpeg"},
		{"archive.tar.gz", "image/png", ".png"},
		{"page.html", "image/png", ".png"},
		{"mislabeled.png", "image/jpeg", ".jpg"},
		{"../../etc/passwd", "image/png", ".png"},
		{"noext", "image/jpeg", ".jpg"},
		{"weird.p/ng", "image/png", ".png"},
		{"evil.ph p", "image/gif", ".gif"},
		{"long.abcdefghijk", "image/webp", ".webp"},
		{"", "image/x-unknown", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, extensionHint(tt.filename, tt.contentType))
		})
	}
}

package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/example/missing-persons/internal/logging"
	"github.com/example/missing-persons/internal/metrics"
	"github.com/google/uuid"
)

// DefaultMaxBytes matches the 5MB limit advertised by the upload form
const DefaultMaxBytes int64 = 5 * 1024 * 1024

const (
	ReasonEmpty       = "empty"
	ReasonTooLarge    = "too_large"
	ReasonUnsupported = "unsupported_type"
	ReasonUpload      = "upload_failed"
	ReasonUnresolved  = "unresolved"
)

var logger = logging.Component("media")

// ObjectStore is the object namespace images are uploaded into
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	PublicURL(key string) string
}

// Locator is the durable reference to an uploaded image
type Locator struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// IngestionError aborts the create flow. Key is empty if nothing was uploaded.
type IngestionError struct {
	Key    string
	Reason string
	Err    error
}

func (e *IngestionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("media ingestion %s: %v", e.Reason, e.Err)
	}
	return "media ingestion " + e.Reason
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

var extFromContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// filename extensions accepted for each sniffed type
var extAliases = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg", ".jpe", ".jfif"},
	"image/png":  {".png"},
	"image/gif":  {".gif"},
	"image/webp": {".webp"},
	"image/bmp":  {".bmp", ".dib"},
}

// Pipeline uploads images under randomized keys
type Pipeline struct {
	objects  ObjectStore
	maxBytes int64
	newToken func() string
}

func NewPipeline(objects ObjectStore, maxBytes int64) *Pipeline {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Pipeline{
		objects:  objects,
		maxBytes: maxBytes,
		newToken: func() string { return uuid.New().String() },
	}
}

// Ingest uploads data and returns its locator once the object is confirmed to
// exist. filename only contributes an extension hint.
func (p *Pipeline) Ingest(ctx context.Context, data []byte, filename string) (Locator, error) {
	loc, err := p.ingest(ctx, data, filename)
	if err != nil {
		var ierr *IngestionError
		if errors.As(err, &ierr) {
			metrics.MediaIngest.WithLabelValues(ierr.Reason).Inc()
		}
		logger.WithError(err).WithField("filename", filename).Warn("[Media] Ingestion failed")
		return Locator{}, err
	}
	metrics.MediaIngest.WithLabelValues("success").Inc()
	logger.WithField("key", loc.Key).Info("[Media] Image uploaded")
	return loc, nil
}

func (p *Pipeline) ingest(ctx context.Context, data []byte, filename string) (Locator, error) {
	if len(data) == 0 {
		return Locator{}, &IngestionError{Reason: ReasonEmpty}
	}
	if int64(len(data)) > p.maxBytes {
		return Locator{}, &IngestionError{
			Reason: ReasonTooLarge,
			Err:    fmt.Errorf("%d bytes exceeds limit of %d", len(data), p.maxBytes),
		}
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return Locator{}, &IngestionError{
			Reason: ReasonUnsupported,
			Err:    fmt.Errorf("content type %s", contentType),
		}
	}

	key := p.newToken() + extensionHint(filename, contentType)

	if err := p.objects.Put(ctx, key, data, contentType); err != nil {
		return Locator{}, &IngestionError{Key: key, Reason: ReasonUpload, Err: err}
	}

	ok, err := p.objects.Exists(ctx, key)
	if err != nil {
		return Locator{}, &IngestionError{Key: key, Reason: ReasonUnresolved, Err: err}
	}
	if !ok {
		return Locator{}, &IngestionError{Key: key, Reason: ReasonUnresolved, Err: errors.New("object missing after upload")}
	}

	return Locator{Key: key, URL: p.objects.PublicURL(key)}, nil
}

// extensionHint keeps the filename's extension when it agrees with the
// sniffed contentType, and otherwise uses the type's canonical one
func extensionHint(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	for _, alias := range extAliases[contentType] {
		if ext == alias {
			return ext
		}
	}
	return extFromContentType[contentType]
}

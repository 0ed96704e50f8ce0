package command

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/missing-persons/internal/domain/person"
	"github.com/example/missing-persons/internal/infrastructure/store"
	"github.com/example/missing-persons/internal/infrastructure/store/mocks"
	"github.com/example/missing-persons/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

type fakeIngester struct {
	calls int
	err   error
	block chan struct{}
}

func (f *fakeIngester) Ingest(ctx context.Context, data []byte, filename string) (media.Locator, error) {
	f.calls++
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return media.Locator{}, f.err
	}
	return media.Locator{Key: "k.png", URL: "https://media.example/k.png"}, nil
}

type fakeRoster struct {
	ids []string
	err error
}

func (f *fakeRoster) MarkFound(ctx context.Context, id string) error {
	f.ids = append(f.ids, id)
	return f.err
}

func validCommand() ReportMissing {
	return ReportMissing{
		Candidate: person.Candidate{
			Name:        "Anna",
			Age:         "34",
			LastSeen:    "Harbour Road",
			Description: "red scarf",
			Contact:     "555-0100",
		},
		Image:    pngBytes,
		Filename: "anna.png",
	}
}

func newTestHandler() (*Handler, *fakeIngester, *mocks.MockRemoteStore, *fakeRoster) {
	ingester := &fakeIngester{}
	remote := mocks.NewMockRemoteStore()
	roster := &fakeRoster{}
	return NewHandler(ingester, remote, roster), ingester, remote, roster
}

// ============================================
// Submit Tests
// ============================================

func TestHandler_Submit_Success(t *testing.T) {
	handler, ingester, remote, _ := newTestHandler()

	rec, err := handler.Submit(context.Background(), validCommand())

	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "Anna", rec.Name)
	assert.Equal(t, 34, rec.Age)
	assert.Equal(t, "https://media.example/k.png", rec.ImageURL)
	assert.Equal(t, person.StatusActive, rec.Status)
	assert.Equal(t, 1, ingester.calls)
	require.Len(t, remote.InsertCalls, 1)
	assert.Equal(t, OutcomeSuccess, Classify(err))
}

func TestHandler_Submit_WithRealPipeline(t *testing.T) {
	objects := media.NewMemoryStore("https://media.example/images")
	remote := mocks.NewMockRemoteStore()
	handler := NewHandler(media.NewPipeline(objects, 0), remote, &fakeRoster{})

	rec, err := handler.Submit(context.Background(), validCommand())

	require.NoError(t, err)
	assert.Equal(t, 1, objects.Len())
	stored, ok := remote.GetRecord(rec.ID)
	require.True(t, ok)
	assert.Contains(t, stored.ImageURL, "https://media.example/images/")
}

func TestHandler_Submit_ValidationSkipsUpload(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(c *person.Candidate)
		field string
	}{
		{"blank name", func(c *person.Candidate) { c.Name = "  " }, "name"},
		{"age not a number", func(c *person.Candidate) { c.Age = "thirty" }, "age"},
		{"age out of range", func(c *person.Candidate) { c.Age = "121" }, "age"},
		{"missing contact", func(c *person.Candidate) { c.Contact = "" }, "contact"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, ingester, remote, _ := newTestHandler()
			cmd := validCommand()
			tt.edit(&cmd.Candidate)

			rec, err := handler.Submit(context.Background(), cmd)

			var verr *person.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Nil(t, rec)
			assert.Zero(t, ingester.calls)
			assert.Empty(t, remote.InsertCalls)
			assert.Equal(t, OutcomeValidationError, Classify(err))
		})
	}
}

func TestHandler_Submit_UploadFailureInsertsNothing(t *testing.T) {
	handler, ingester, remote, _ := newTestHandler()
	ingester.err = &media.IngestionError{Key: "k.png", Reason: media.ReasonUpload, Err: errors.New("quota")}

	rec, err := handler.Submit(context.Background(), validCommand())

	assert.Nil(t, rec)
	assert.Equal(t, OutcomeIngestionError, Classify(err))
	assert.Empty(t, remote.InsertCalls)
	assert.Empty(t, remote.Records())
}

func TestHandler_Submit_MissingImage(t *testing.T) {
	handler, ingester, remote, _ := newTestHandler()
	cmd := validCommand()
	cmd.Image = nil

	_, err := handler.Submit(context.Background(), cmd)

	var verr *person.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "image", verr.Field)
	assert.Zero(t, ingester.calls)
	assert.Empty(t, remote.InsertCalls)
}

func TestHandler_Submit_RejectedImage(t *testing.T) {
	objects := media.NewMemoryStore("")
	remote := mocks.NewMockRemoteStore()
	handler := NewHandler(media.NewPipeline(objects, 0), remote, &fakeRoster{})
	cmd := validCommand()
	cmd.Image = []byte("plain text, not a picture")

	_, err := handler.Submit(context.Background(), cmd)

	assert.Equal(t, OutcomeIngestionError, Classify(err))
	assert.Empty(t, remote.InsertCalls)
	assert.Zero(t, objects.Len())
}

func TestHandler_Submit_InsertFailure(t *testing.T) {
	handler, _, remote, _ := newTestHandler()
	remote.InsertErr = errors.New("connection reset")

	rec, err := handler.Submit(context.Background(), validCommand())

	assert.Nil(t, rec)
	var serr *store.Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "insert", serr.Op)
	assert.ErrorContains(t, err, "connection reset")
	assert.Equal(t, OutcomeStoreError, Classify(err))
	assert.Empty(t, remote.Records())
}

func TestHandler_Submitting(t *testing.T) {
	handler, ingester, _, _ := newTestHandler()
	ingester.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := handler.Submit(context.Background(), validCommand())
		done <- err
	}()

	require.Eventually(t, handler.Submitting, waitFor, tick)
	close(ingester.block)
	require.NoError(t, <-done)
	assert.False(t, handler.Submitting())
}

// ============================================
// MarkFound Tests
// ============================================

func TestHandler_MarkFound_Delegates(t *testing.T) {
	handler, _, _, roster := newTestHandler()
	roster.err = errors.New("rejected")

	err := handler.MarkFound(context.Background(), "abc")

	assert.EqualError(t, err, "rejected")
	assert.Equal(t, []string{"abc"}, roster.ids)
}

// ============================================
// Classify Tests
// ============================================

func TestClassify_WrappedErrors(t *testing.T) {
	assert.Equal(t, OutcomeValidationError, Classify(fmt.Errorf("wrap: %w", &person.ValidationError{Field: "name"})))
	assert.Equal(t, OutcomeIngestionError, Classify(fmt.Errorf("wrap: %w", &media.IngestionError{Reason: media.ReasonEmpty})))
	assert.Equal(t, OutcomeStoreError, Classify(errors.New("boom")))
}

package command

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/example/missing-persons/internal/domain/person"
	"github.com/example/missing-persons/internal/infrastructure/store"
	"github.com/example/missing-persons/internal/logging"
	"github.com/example/missing-persons/internal/media"
	"github.com/sirupsen/logrus"
)

var logger = logging.Component("command")

// ReportMissing is a missing-person submission as it arrives from a form
type ReportMissing struct {
	Candidate person.Candidate
	Image     []byte
	Filename  string
}

// Ingester stores an image and returns where it can be fetched
type Ingester interface {
	Ingest(ctx context.Context, data []byte, filename string) (media.Locator, error)
}

// Roster applies found transitions optimistically
type Roster interface {
	MarkFound(ctx context.Context, id string) error
}

type Handler struct {
	media      Ingester
	records    store.Records
	roster     Roster
	submitting atomic.Int32
}

func NewHandler(ingester Ingester, records store.Records, roster Roster) *Handler {
	return &Handler{
		media:   ingester,
		records: records,
		roster:  roster,
	}
}

// Submitting is true while at least one Submit is in flight
func (h *Handler) Submitting() bool {
	return h.submitting.Load() > 0
}

// Submit validates, uploads the image, then inserts the record. Nothing is
// inserted unless the image is resolvable.
func (h *Handler) Submit(ctx context.Context, cmd ReportMissing) (*person.Record, error) {
	h.submitting.Add(1)
	defer h.submitting.Add(-1)

	// 1. Reject bad fields before touching the network
	if err := cmd.Candidate.ValidateFields(); err != nil {
		return nil, err
	}
	if len(cmd.Image) == 0 {
		return nil, &person.ValidationError{Field: "image"}
	}

	// 2. Upload the image
	loc, err := h.media.Ingest(ctx, cmd.Image, cmd.Filename)
	if err != nil {
		return nil, err
	}

	// 3. Validate the complete candidate
	candidate := cmd.Candidate
	candidate.ImageURL = loc.URL
	rec, err := candidate.Validate()
	if err != nil {
		return nil, err
	}

	// 4. Insert; the subscription delivers it to every roster
	created, err := h.records.Insert(ctx, *rec)
	if err != nil {
		logger.WithError(err).WithField("image_key", loc.Key).Error("[Command] Insert failed after upload")
		return nil, &store.Error{Op: "insert", Err: err}
	}

	logger.WithFields(logrus.Fields{
		"id":        created.ID,
		"image_key": loc.Key,
	}).Info("[Command] Missing person reported")
	return created, nil
}

// MarkFound delegates to the roster, which owns the optimistic state
func (h *Handler) MarkFound(ctx context.Context, id string) error {
	return h.roster.MarkFound(ctx, id)
}

// SubmitOutcome is the user-facing result of a Submit
type SubmitOutcome string

const (
	OutcomeSuccess         SubmitOutcome = "success"
	OutcomeValidationError SubmitOutcome = "validation_error"
	OutcomeIngestionError  SubmitOutcome = "ingestion_error"
	OutcomeStoreError      SubmitOutcome = "store_error"
)

// Classify maps a Submit error to its outcome. Unknown errors count as store
// errors.
func Classify(err error) SubmitOutcome {
	if err == nil {
		return OutcomeSuccess
	}
	var verr *person.ValidationError
	if errors.As(err, &verr) {
		return OutcomeValidationError
	}
	var ierr *media.IngestionError
	if errors.As(err, &ierr) {
		return OutcomeIngestionError
	}
	return OutcomeStoreError
}

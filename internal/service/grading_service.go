package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/evidia-go-api/internal/dto"
	"github.com/noah-isme/evidia-go-api/internal/models"
	"github.com/noah-isme/evidia-go-api/internal/observability"
	"github.com/noah-isme/evidia-go-api/internal/repository"
	"github.com/noah-isme/evidia-go-api/pkg/storage"
)

const gradingUploadPrefix = "uploads/evaluacion"

// ResultInvalidator drops cached result projections after a terminal grade.
type ResultInvalidator interface {
	Invalidate(ctx context.Context)
}

// GradingService drives the evaluator workflow: the gradable queue, resumable
// partial scoring and the terminal finalize decision.
type GradingService interface {
	SavePartial(ctx context.Context, evidenceID uint, payload dto.PartialSaveRequest) (dto.PartialProgressResponse, error)
	LoadPartial(ctx context.Context, evidenceID uint) (*dto.PartialProgressResponse, error)
	Finalize(ctx context.Context, evidenceID uint, payload dto.FinalizeRequest, files []*multipart.FileHeader) (dto.FinalizeResponse, error)
	PendingEvidences(ctx context.Context) ([]dto.PendingEvidenceResponse, error)
	SessionHistory(ctx context.Context) ([]dto.GradingHistoryResponse, error)
}

type gradingService struct {
	gradings  repository.GradingRepository
	evidences repository.EvidenceRepository
	storage   storage.BlobStorage
	validator *validator.Validate
	activity  ActivityRecorder
	results   ResultInvalidator
	sanitizer *bluemonday.Policy
	sessions  *keyedMutex
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewGradingService constructs a GradingService instance.
func NewGradingService(
	gradings repository.GradingRepository,
	evidences repository.EvidenceRepository,
	blobs storage.BlobStorage,
	validate *validator.Validate,
	activity ActivityRecorder,
	results ResultInvalidator,
	logger zerolog.Logger,
) GradingService {
	return &gradingService{
		gradings:  gradings,
		evidences: evidences,
		storage:   blobs,
		validator: validate,
		activity:  activity,
		results:   results,
		sanitizer: bluemonday.StrictPolicy(),
		sessions:  newKeyedMutex(),
		logger:    logger.With().Str("component", "grading_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/evidia-go-api/internal/service/grading"),
		now:       time.Now,
	}
}

// SavePartial upserts the score and remark for one evidence inside the
// instructor's open session, creating the session when none exists. Repeating
// the call with identical values leaves exactly one line behind.
func (s *gradingService) SavePartial(ctx context.Context, evidenceID uint, payload dto.PartialSaveRequest) (dto.PartialProgressResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.PartialProgressResponse{}, err
	}

	evidence, err := s.evidences.GetByID(ctx, evidenceID)
	if err != nil {
		return dto.PartialProgressResponse{}, notFoundOr(err, ErrEvidenceNotFound)
	}
	if evidence.IsGraded() {
		return dto.PartialProgressResponse{}, ErrEvidenceGraded
	}

	// Find-or-create on the open session races under concurrent saves for the
	// same instructor; serialize those per instructor.
	unlock := s.sessions.lock(evidence.SubmitterID)
	defer unlock()

	session, err := s.gradings.OpenSessionByInstructor(ctx, evidence.SubmitterID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		placeholder := 0.0
		session = models.GradingSession{
			InstructorID: evidence.SubmitterID,
			TotalScore:   &placeholder,
			GradedAt:     s.now(),
			Status:       models.GradingStatusInProgress,
		}
		err = s.gradings.CreateSession(ctx, &session)
	}
	if err != nil {
		observability.GradingOps().WithLabelValues("partial_save", "error").Inc()
		return dto.PartialProgressResponse{}, fmt.Errorf("failed to resolve grading session: %w", err)
	}

	remark := s.sanitizer.Sanitize(payload.Remark)

	line, err := s.gradings.LineBySessionAndEvidence(ctx, session.ID, evidenceID)
	switch {
	case err == nil:
		line.Score = payload.Score
		line.Remark = remark
		err = s.gradings.UpdateLine(ctx, &line)
	case errors.Is(err, gorm.ErrRecordNotFound):
		line = models.GradeLine{
			SessionID:  session.ID,
			EvidenceID: evidenceID,
			Score:      payload.Score,
			Remark:     remark,
		}
		err = s.gradings.CreateLine(ctx, &line)
	}
	if err != nil {
		observability.GradingOps().WithLabelValues("partial_save", "error").Inc()
		return dto.PartialProgressResponse{}, fmt.Errorf("failed to save partial grade: %w", err)
	}

	observability.GradingOps().WithLabelValues("partial_save", "ok").Inc()
	return dto.PartialProgressResponse{Score: line.Score, Remark: line.Remark}, nil
}

// LoadPartial returns the saved progress for the evidence, or nil when no
// in-progress line exists.
func (s *gradingService) LoadPartial(ctx context.Context, evidenceID uint) (*dto.PartialProgressResponse, error) {
	if _, err := s.evidences.GetByID(ctx, evidenceID); err != nil {
		return nil, notFoundOr(err, ErrEvidenceNotFound)
	}

	line, err := s.gradings.OpenLineByEvidence(ctx, evidenceID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load partial grade: %w", err)
	}

	return &dto.PartialProgressResponse{Score: line.Score, Remark: line.Remark}, nil
}

// Finalize records the terminal grading decision: supporting files are stored
// first, then one transaction supersedes any open session, writes the terminal
// session with its single line, and flips the evidence to its graded state.
// When the transaction fails the stored files are removed again.
func (s *gradingService) Finalize(ctx context.Context, evidenceID uint, payload dto.FinalizeRequest, files []*multipart.FileHeader) (dto.FinalizeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.finalize")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("grading.evidence_id", int64(evidenceID)),
		attribute.Float64("grading.score", payload.Score),
	)

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.FinalizeResponse{}, err
	}

	evidence, err := s.evidences.GetByID(ctx, evidenceID)
	if err != nil {
		return dto.FinalizeResponse{}, notFoundOr(err, ErrEvidenceNotFound)
	}
	if evidence.IsGraded() {
		return dto.FinalizeResponse{}, ErrEvidenceGraded
	}

	refs, err := s.storeSupportFiles(ctx, evidenceID, files)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage_failed")
		return dto.FinalizeResponse{}, err
	}

	status := models.StatusForScore(payload.Score)
	session, err := s.gradings.Finalize(ctx, repository.FinalizeParams{
		EvidenceID:   evidenceID,
		InstructorID: evidence.SubmitterID,
		EvaluatorID:  payload.EvaluatorID,
		Score:        payload.Score,
		Remark:       s.sanitizer.Sanitize(payload.Remark),
		GradedAt:     s.now(),
		Status:       status,
	})
	if err != nil {
		s.discardSupportFiles(ctx, refs)
		observability.GradingOps().WithLabelValues("finalize", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "finalize_failed")
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.FinalizeResponse{}, ErrEvidenceNotFound
		}
		return dto.FinalizeResponse{}, fmt.Errorf("failed to finalize grading: %w", err)
	}

	if s.results != nil {
		s.results.Invalidate(ctx)
	}

	if s.activity != nil {
		entityID := evidenceID
		s.activity.Record(ActivityEntry{
			ActorID:    payload.EvaluatorID,
			ActorRole:  "evaluator",
			Action:     "evidence.graded",
			EntityType: "evidence",
			EntityID:   &entityID,
			Metadata: map[string]interface{}{
				"score":  payload.Score,
				"status": status,
			},
		})
	}

	observability.GradingOps().WithLabelValues("finalize", status).Inc()
	span.SetStatus(codes.Ok, "finalized")

	return dto.FinalizeResponse{
		SessionID:  session.ID,
		Status:     status,
		SavedFiles: refs,
	}, nil
}

// PendingEvidences lists every evidence still awaiting a terminal grade.
func (s *gradingService) PendingEvidences(ctx context.Context) ([]dto.PendingEvidenceResponse, error) {
	evidences, err := s.evidences.List(ctx, repository.EvidenceFilter{
		Statuses: []string{models.EvidenceStatusUploaded, models.EvidenceStatusDraft},
	})
	if err != nil {
		return nil, err
	}

	rows := make([]dto.PendingEvidenceResponse, 0, len(evidences))
	for _, evidence := range evidences {
		rows = append(rows, dto.NewPendingEvidenceResponse(evidence))
	}

	return rows, nil
}

// SessionHistory lists grading sessions newest first.
func (s *gradingService) SessionHistory(ctx context.Context) ([]dto.GradingHistoryResponse, error) {
	sessions, err := s.gradings.SessionsByDateDesc(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]dto.GradingHistoryResponse, 0, len(sessions))
	for _, session := range sessions {
		rows = append(rows, dto.NewGradingHistoryResponse(session))
	}

	return rows, nil
}

func (s *gradingService) storeSupportFiles(ctx context.Context, evidenceID uint, files []*multipart.FileHeader) ([]string, error) {
	refs := make([]string, 0, len(files))
	for _, file := range files {
		handle, err := file.Open()
		if err != nil {
			s.discardSupportFiles(ctx, refs)
			return nil, fmt.Errorf("failed to open support file: %w", err)
		}

		name := fmt.Sprintf("%s/%d_%s", gradingUploadPrefix, evidenceID, file.Filename)
		start := time.Now()
		ref, err := s.storage.Put(ctx, name, handle)
		observability.BlobLatency().WithLabelValues("put").Observe(time.Since(start).Seconds())
		handle.Close()
		if err != nil {
			s.discardSupportFiles(ctx, refs)
			return nil, fmt.Errorf("failed to store support file: %w", err)
		}

		refs = append(refs, ref)
	}

	return refs, nil
}

func (s *gradingService) discardSupportFiles(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if err := s.storage.Delete(ctx, ref); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Str("ref", ref).Msg("failed to remove support file")
		}
	}
}

// keyedMutex hands out one mutex per key, lazily. Entries are reference
// counted and removed once the last holder releases, so the map stays
// bounded by the number of keys locked at the same time.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uint]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	holders int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uint]*keyedLock)}
}

func (k *keyedMutex) lock(key uint) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &keyedLock{}
		k.locks[key] = lock
	}
	lock.holders++
	k.mu.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()

		k.mu.Lock()
		lock.holders--
		if lock.holders == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

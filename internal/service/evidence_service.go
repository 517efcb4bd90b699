package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/evidia-go-api/internal/dto"
	"github.com/noah-isme/evidia-go-api/internal/models"
	"github.com/noah-isme/evidia-go-api/internal/observability"
	"github.com/noah-isme/evidia-go-api/internal/repository"
	"github.com/noah-isme/evidia-go-api/pkg/storage"
)

var (
	// ErrSubmitterNotFound indicates the referenced submitter does not exist.
	ErrSubmitterNotFound = errors.New("submitter not found")
	// ErrCategoryNotFound indicates the referenced category does not exist.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrReportNotFound indicates the referenced parent report does not exist.
	ErrReportNotFound = errors.New("report not found")
	// ErrEvidenceNotFound indicates the evidence does not exist.
	ErrEvidenceNotFound = errors.New("evidence not found")
	// ErrEvidenceGraded indicates the evidence reached its terminal state and
	// can no longer be edited.
	ErrEvidenceGraded = errors.New("evidence already graded")
	// ErrNoFiles indicates a submission arrived without any file.
	ErrNoFiles = errors.New("at least one file is required")
	// ErrFileTooLarge indicates an uploaded file exceeds the configured limit.
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrInvalidForm indicates the structured form failed the category schema.
	ErrInvalidForm = errors.New("structured form does not satisfy the category schema")
	// ErrFileNotFound indicates the requested stored file does not exist.
	ErrFileNotFound = errors.New("stored file not found")
)

const evidenceUploadPrefix = "uploads"

// EvidenceService orchestrates the evidence lifecycle up to (but excluding)
// grading: submission, edit, deletion and the read projections.
type EvidenceService interface {
	Submit(ctx context.Context, payload dto.SubmitEvidenceRequest, files []*multipart.FileHeader) (dto.EvidenceResponse, error)
	Edit(ctx context.Context, id uint, payload dto.EditEvidenceRequest, files []*multipart.FileHeader) (dto.EvidenceResponse, error)
	Delete(ctx context.Context, id uint, actor ActivityActor) error
	List(ctx context.Context, submitterID *uint) ([]dto.EvidenceSummaryResponse, error)
	Detail(ctx context.Context, id uint) (dto.EvidenceDetailResponse, error)
	History(ctx context.Context, submitterID uint) ([]dto.UploadHistoryResponse, error)
	Download(ctx context.Context, filename string) (io.ReadCloser, error)
}

type evidenceService struct {
	evidences  repository.EvidenceRepository
	users      repository.UserRepository
	categories repository.CategoryRepository
	reports    repository.ReportRepository
	storage    storage.BlobStorage
	validator  *validator.Validate
	activity   ActivityRecorder
	sanitizer  *bluemonday.Policy
	baseURL    string
	maxSize    int64
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewEvidenceService constructs an EvidenceService instance.
func NewEvidenceService(
	evidences repository.EvidenceRepository,
	users repository.UserRepository,
	categories repository.CategoryRepository,
	reports repository.ReportRepository,
	blobs storage.BlobStorage,
	validate *validator.Validate,
	activity ActivityRecorder,
	baseURL string,
	maxSizeMB int,
	logger zerolog.Logger,
) EvidenceService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}

	return &evidenceService{
		evidences:  evidences,
		users:      users,
		categories: categories,
		reports:    reports,
		storage:    blobs,
		validator:  validate,
		activity:   activity,
		sanitizer:  bluemonday.StrictPolicy(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		logger:     logger.With().Str("component", "evidence_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/evidia-go-api/internal/service/evidence"),
		now:        time.Now,
	}
}

func (s *evidenceService) Submit(ctx context.Context, payload dto.SubmitEvidenceRequest, files []*multipart.FileHeader) (dto.EvidenceResponse, error) {
	ctx, span := s.tracer.Start(ctx, "evidence.submit")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("evidence.submitter_id", int64(payload.SubmitterID)),
		attribute.Int("evidence.file_count", len(files)),
	)

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.EvidenceResponse{}, err
	}
	if len(files) == 0 {
		span.SetStatus(codes.Error, "no_files")
		return dto.EvidenceResponse{}, ErrNoFiles
	}

	if _, err := s.users.GetByID(ctx, payload.SubmitterID); err != nil {
		return dto.EvidenceResponse{}, notFoundOr(err, ErrSubmitterNotFound)
	}
	category, err := s.categories.GetByID(ctx, payload.CategoryID)
	if err != nil {
		return dto.EvidenceResponse{}, notFoundOr(err, ErrCategoryNotFound)
	}
	if payload.ReportID != nil {
		if _, err := s.reports.GetByID(ctx, *payload.ReportID); err != nil {
			return dto.EvidenceResponse{}, notFoundOr(err, ErrReportNotFound)
		}
	}

	if err := s.checkFormSchema(ctx, category, payload.Form); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "form_schema_failed")
		return dto.EvidenceResponse{}, err
	}

	refs, mimes, err := s.storeFiles(ctx, evidenceUploadPrefix, files)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage_failed")
		return dto.EvidenceResponse{}, err
	}

	now := s.now()
	evidence := models.Evidence{
		Title:       strings.TrimSpace(payload.Title),
		Description: s.sanitizer.Sanitize(payload.Description),
		CategoryID:  payload.CategoryID,
		SubmitterID: payload.SubmitterID,
		ReportID:    payload.ReportID,
		Files:       datatypes.JSONSlice[string](refs),
		Form:        datatypes.JSONMap(payload.Form),
		SubmittedAt: now,
		Status:      models.EvidenceStatusUploaded,
	}

	if err := s.evidences.CreateWithHistory(ctx, &evidence, now); err != nil {
		s.discardRefs(ctx, refs)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence_failed")
		return dto.EvidenceResponse{}, fmt.Errorf("failed to persist evidence: %w", err)
	}

	s.record("evidence.submitted", evidence, ActivityActor{ID: payload.SubmitterID, Role: "instructor"}, map[string]interface{}{
		"title":      evidence.Title,
		"file_count": len(refs),
		"mime_types": mimes,
	})

	span.SetStatus(codes.Ok, "submitted")
	return dto.NewEvidenceResponse(evidence), nil
}

func (s *evidenceService) Edit(ctx context.Context, id uint, payload dto.EditEvidenceRequest, files []*multipart.FileHeader) (dto.EvidenceResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.EvidenceResponse{}, err
	}

	evidence, err := s.evidences.GetByID(ctx, id)
	if err != nil {
		return dto.EvidenceResponse{}, notFoundOr(err, ErrEvidenceNotFound)
	}
	if evidence.IsGraded() {
		return dto.EvidenceResponse{}, ErrEvidenceGraded
	}

	// Empty values are indistinguishable from absent ones; only non-empty
	// fields overwrite the stored value.
	if payload.Title != "" {
		evidence.Title = strings.TrimSpace(payload.Title)
	}
	if payload.Description != "" {
		evidence.Description = s.sanitizer.Sanitize(payload.Description)
	}
	if payload.CategoryID != 0 {
		if _, err := s.categories.GetByID(ctx, payload.CategoryID); err != nil {
			return dto.EvidenceResponse{}, notFoundOr(err, ErrCategoryNotFound)
		}
		evidence.CategoryID = payload.CategoryID
	}

	replaced := len(files) > 0
	if replaced {
		// The old set is removed before the new one is written; a crash in
		// between leaves dangling references. Deletion failures are tolerated.
		s.discardRefs(ctx, evidence.Files)

		refs, _, err := s.storeFiles(ctx, evidenceUploadPrefix, files)
		if err != nil {
			return dto.EvidenceResponse{}, err
		}
		evidence.Files = datatypes.JSONSlice[string](refs)
	}

	if replaced {
		err = s.evidences.UpdateWithHistory(ctx, &evidence, s.now())
	} else {
		err = s.evidences.Update(ctx, &evidence)
	}
	if err != nil {
		return dto.EvidenceResponse{}, fmt.Errorf("failed to update evidence: %w", err)
	}

	s.record("evidence.updated", evidence, ActivityActor{ID: evidence.SubmitterID, Role: "instructor"}, map[string]interface{}{
		"files_replaced": replaced,
	})

	return dto.NewEvidenceResponse(evidence), nil
}

func (s *evidenceService) Delete(ctx context.Context, id uint, actor ActivityActor) error {
	evidence, err := s.evidences.GetByID(ctx, id)
	if err != nil {
		return notFoundOr(err, ErrEvidenceNotFound)
	}

	s.discardRefs(ctx, evidence.Files)

	if err := s.evidences.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEvidenceNotFound
		}
		return fmt.Errorf("failed to delete evidence: %w", err)
	}

	if actor.ID == 0 {
		actor = ActivityActor{ID: evidence.SubmitterID, Role: "instructor"}
	}
	s.record("evidence.deleted", evidence, actor, map[string]interface{}{
		"title": evidence.Title,
	})

	return nil
}

func (s *evidenceService) List(ctx context.Context, submitterID *uint) ([]dto.EvidenceSummaryResponse, error) {
	evidences, err := s.evidences.List(ctx, repository.EvidenceFilter{SubmitterID: submitterID})
	if err != nil {
		return nil, err
	}

	summaries := make([]dto.EvidenceSummaryResponse, 0, len(evidences))
	for _, evidence := range evidences {
		summaries = append(summaries, dto.NewEvidenceSummaryResponse(evidence, s.downloadURL))
	}

	return summaries, nil
}

func (s *evidenceService) Detail(ctx context.Context, id uint) (dto.EvidenceDetailResponse, error) {
	evidence, err := s.evidences.GetByID(ctx, id)
	if err != nil {
		return dto.EvidenceDetailResponse{}, notFoundOr(err, ErrEvidenceNotFound)
	}

	return dto.NewEvidenceDetailResponse(evidence, s.downloadURL), nil
}

func (s *evidenceService) History(ctx context.Context, submitterID uint) ([]dto.UploadHistoryResponse, error) {
	records, err := s.evidences.HistoryBySubmitter(ctx, submitterID)
	if err != nil {
		return nil, err
	}

	rows := make([]dto.UploadHistoryResponse, 0, len(records))
	for _, record := range records {
		rows = append(rows, dto.NewUploadHistoryResponse(record))
	}

	return rows, nil
}

func (s *evidenceService) Download(ctx context.Context, filename string) (io.ReadCloser, error) {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "" || name == "." {
		return nil, ErrFileNotFound
	}

	start := time.Now()
	reader, err := s.storage.Get(ctx, evidenceUploadPrefix+"/"+name)
	observability.BlobLatency().WithLabelValues("get").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to read stored file: %w", err)
	}

	return reader, nil
}

// storeFiles persists every file under a collision-resistant generated name.
// On any failure the already stored part of the batch is discarded.
func (s *evidenceService) storeFiles(ctx context.Context, prefix string, files []*multipart.FileHeader) ([]string, []string, error) {
	refs := make([]string, 0, len(files))
	mimes := make([]string, 0, len(files))
	for _, file := range files {
		ref, mime, err := s.storeFile(ctx, prefix, file)
		if err != nil {
			s.discardRefs(ctx, refs)
			return nil, nil, err
		}
		refs = append(refs, ref)
		mimes = append(mimes, mime)
	}

	return refs, mimes, nil
}

func (s *evidenceService) storeFile(ctx context.Context, prefix string, file *multipart.FileHeader) (string, string, error) {
	if file.Size > s.maxSize {
		return "", "", ErrFileTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		return "", "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		return "", "", fmt.Errorf("failed to read uploaded file: %w", err)
	}
	if int64(buf.Len()) > s.maxSize {
		return "", "", ErrFileTooLarge
	}

	detected := mimetype.Detect(buf.Bytes())
	observability.Submissions().WithLabelValues(detected.String()).Inc()

	name := fmt.Sprintf("%s/%s_%s", prefix, uuid.NewString(), path.Base(file.Filename))

	start := time.Now()
	ref, err := s.storage.Put(ctx, name, bytes.NewReader(buf.Bytes()))
	observability.BlobLatency().WithLabelValues("put").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", "", fmt.Errorf("failed to store file: %w", err)
	}

	return ref, detected.String(), nil
}

// discardRefs removes stored blobs best-effort; missing blobs are expected
// and other failures only logged.
func (s *evidenceService) discardRefs(ctx context.Context, refs []string) {
	for _, ref := range refs {
		start := time.Now()
		err := s.storage.Delete(ctx, ref)
		observability.BlobLatency().WithLabelValues("delete").Observe(time.Since(start).Seconds())
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Str("ref", ref).Msg("failed to delete stored file")
		}
	}
}

// checkFormSchema validates the structured form against the category schema,
// when the category defines one. A malformed stored schema is logged and
// skipped rather than blocking the submission.
func (s *evidenceService) checkFormSchema(ctx context.Context, category models.Category, form map[string]interface{}) error {
	if !category.HasFormSchema() || form == nil {
		return nil
	}

	schema, err := jsonschema.CompileString("category.schema.json", string(category.FormSchema))
	if err != nil {
		s.logger.Warn().Err(err).Uint("category_id", category.ID).Msg("category form schema does not compile, skipping validation")
		return nil
	}

	if err := schema.Validate(map[string]interface{}(form)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}

	return nil
}

func (s *evidenceService) downloadURL(ref string) string {
	normalized := strings.ReplaceAll(ref, "\\", "/")
	if strings.HasPrefix(normalized, "http://") || strings.HasPrefix(normalized, "https://") {
		return normalized
	}

	return s.baseURL + "/" + strings.TrimPrefix(normalized, "/")
}

func (s *evidenceService) record(action string, evidence models.Evidence, actor ActivityActor, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}

	entityID := evidence.ID
	s.activity.Record(ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "evidence",
		EntityID:   &entityID,
		Metadata:   metadata,
	})
}

// notFoundOr maps a gorm record-not-found onto the domain sentinel and keeps
// everything else as-is.
func notFoundOr(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

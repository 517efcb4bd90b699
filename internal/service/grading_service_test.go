package service

import (
	"context"
	"mime/multipart"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/evidia-go-api/internal/dto"
	"github.com/noah-isme/evidia-go-api/internal/models"
	"github.com/noah-isme/evidia-go-api/internal/repository"
	"github.com/noah-isme/evidia-go-api/pkg/storage"
)

func newGradingFixture(t *testing.T) (GradingService, EvidenceService, *gorm.DB, *storage.Memory) {
	t.Helper()
	db := setupServiceDB(t)
	blobs := storage.NewMemory()
	validate := validator.New(validator.WithRequiredStructEnabled())

	evidences := NewEvidenceService(
		repository.NewEvidenceRepository(db),
		repository.NewUserRepository(db),
		repository.NewCategoryRepository(db),
		repository.NewReportRepository(db),
		blobs, validate, nil,
		"http://files.test/evidencias/descargar", 10, testLogger(),
	)
	gradings := NewGradingService(
		repository.NewGradingRepository(db),
		repository.NewEvidenceRepository(db),
		blobs, validate, nil, nil, testLogger(),
	)
	return gradings, evidences, db, blobs
}

func seedEvaluatorUser(t *testing.T, db *gorm.DB) models.User {
	t.Helper()
	user := models.User{FirstName: "Carmen", LastName: "Diaz", Email: t.Name() + "+eval@example.com", RoleID: models.RoleEvaluator}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func submitEvidence(t *testing.T, evidences EvidenceService, db *gorm.DB) dto.EvidenceResponse {
	t.Helper()
	instructor := seedInstructor(t, db)
	category := seedEvidenceCategory(t, db, "")
	created, err := evidences.Submit(context.Background(), dto.SubmitEvidenceRequest{
		Title: "Evidencia de practica", CategoryID: category.ID, SubmitterID: instructor.ID,
	}, []*multipart.FileHeader{fileHeader(t, "practica.pdf", "contenido")})
	require.NoError(t, err)
	return created
}

func TestGradingServiceSavePartialIsIdempotent(t *testing.T) {
	gradings, evidences, db, _ := newGradingFixture(t)
	evidence := submitEvidence(t, evidences, db)

	first, err := gradings.SavePartial(context.Background(), evidence.ID, dto.PartialSaveRequest{Score: 35, Remark: "parcial"})
	require.NoError(t, err)
	require.Equal(t, 35.0, first.Score)

	second, err := gradings.SavePartial(context.Background(), evidence.ID, dto.PartialSaveRequest{Score: 35, Remark: "parcial"})
	require.NoError(t, err)
	require.Equal(t, first, second)

	var sessions, lines int64
	require.NoError(t, db.Model(&models.GradingSession{}).Count(&sessions).Error)
	require.NoError(t, db.Model(&models.GradeLine{}).Count(&lines).Error)
	require.Equal(t, int64(1), sessions, "repeated saves reuse the open session")
	require.Equal(t, int64(1), lines, "repeated saves keep a single line")
}

func TestGradingServicePartialSaveAndResume(t *testing.T) {
	gradings, evidences, db, _ := newGradingFixture(t)
	evidence := submitEvidence(t, evidences, db)

	progress, err := gradings.LoadPartial(context.Background(), evidence.ID)
	require.NoError(t, err)
	require.Nil(t, progress, "no progress exists before the first save")

	_, err = gradings.SavePartial(context.Background(), evidence.ID, dto.PartialSaveRequest{Score: 42, Remark: "pendiente anexos"})
	require.NoError(t, err)

	progress, err = gradings.LoadPartial(context.Background(), evidence.ID)
	require.NoError(t, err)
	require.NotNil(t, progress)
	require.Equal(t, 42.0, progress.Score)
	require.Equal(t, "pendiente anexos", progress.Remark)

	_, err = gradings.SavePartial(context.Background(), 999, dto.PartialSaveRequest{Score: 10})
	require.ErrorIs(t, err, ErrEvidenceNotFound)
}

func TestGradingServiceFinalizeThreshold(t *testing.T) {
	gradings, evidences, db, _ := newGradingFixture(t)
	evaluator := seedEvaluatorUser(t, db)

	approved := submitEvidence(t, evidences, db)
	result, err := gradings.Finalize(context.Background(), approved.ID, dto.FinalizeRequest{
		Score: 50, EvaluatorID: evaluator.ID,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, models.GradingStatusApproved, result.Status, "a score at the threshold approves")

	rejected := submitEvidence(t, evidences, db)
	result, err = gradings.Finalize(context.Background(), rejected.ID, dto.FinalizeRequest{
		Score: 49.99, EvaluatorID: evaluator.ID,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, models.GradingStatusRejected, result.Status, "a score just below the threshold rejects")
}

func TestGradingServiceFinalizeIsTerminal(t *testing.T) {
	gradings, evidences, db, _ := newGradingFixture(t)
	evaluator := seedEvaluatorUser(t, db)
	evidence := submitEvidence(t, evidences, db)

	_, err := gradings.Finalize(context.Background(), evidence.ID, dto.FinalizeRequest{
		Score: 70, EvaluatorID: evaluator.ID,
	}, nil)
	require.NoError(t, err)

	_, err = gradings.SavePartial(context.Background(), evidence.ID, dto.PartialSaveRequest{Score: 10})
	require.ErrorIs(t, err, ErrEvidenceGraded)

	_, err = gradings.Finalize(context.Background(), evidence.ID, dto.FinalizeRequest{
		Score: 90, EvaluatorID: evaluator.ID,
	}, nil)
	require.ErrorIs(t, err, ErrEvidenceGraded)

	_, err = evidences.Edit(context.Background(), evidence.ID, dto.EditEvidenceRequest{Title: "Tarde"}, nil)
	require.ErrorIs(t, err, ErrEvidenceGraded)
}

func TestGradingServiceFinalizeSupersedesPartialSession(t *testing.T) {
	gradings, evidences, db, _ := newGradingFixture(t)
	evaluator := seedEvaluatorUser(t, db)
	evidence := submitEvidence(t, evidences, db)

	_, err := gradings.SavePartial(context.Background(), evidence.ID, dto.PartialSaveRequest{Score: 20, Remark: "borrador"})
	require.NoError(t, err)

	result, err := gradings.Finalize(context.Background(), evidence.ID, dto.FinalizeRequest{
		Score: 85, Remark: "completo", EvaluatorID: evaluator.ID,
	}, nil)
	require.NoError(t, err)

	var sessions int64
	require.NoError(t, db.Model(&models.GradingSession{}).Count(&sessions).Error)
	require.Equal(t, int64(1), sessions, "the in-progress session is superseded, not kept")

	var stored models.GradingSession
	require.NoError(t, db.First(&stored, result.SessionID).Error)
	require.Equal(t, models.GradingStatusApproved, stored.Status)
	require.Equal(t, evaluator.ID, *stored.EvaluatorID)
	require.Equal(t, 85.0, *stored.TotalScore)
}

func TestGradingServiceFinalizeStoresSupportFiles(t *testing.T) {
	gradings, evidences, db, blobs := newGradingFixture(t)
	evaluator := seedEvaluatorUser(t, db)
	evidence := submitEvidence(t, evidences, db)
	before := blobs.Len()

	result, err := gradings.Finalize(context.Background(), evidence.ID, dto.FinalizeRequest{
		Score: 65, EvaluatorID: evaluator.ID,
	}, []*multipart.FileHeader{fileHeader(t, "rubrica.pdf", "rubrica")})
	require.NoError(t, err)
	require.Len(t, result.SavedFiles, 1)
	require.True(t, strings.HasPrefix(result.SavedFiles[0], "uploads/evaluacion/"))
	require.Equal(t, before+1, blobs.Len())
}

func TestGradingServicePendingQueueExcludesGraded(t *testing.T) {
	gradings, evidences, db, _ := newGradingFixture(t)
	evaluator := seedEvaluatorUser(t, db)

	open := submitEvidence(t, evidences, db)
	closed := submitEvidence(t, evidences, db)
	_, err := gradings.Finalize(context.Background(), closed.ID, dto.FinalizeRequest{
		Score: 55, EvaluatorID: evaluator.ID,
	}, nil)
	require.NoError(t, err)

	pending, err := gradings.PendingEvidences(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, open.ID, pending[0].ID)
}

func TestGradingServiceFullLifecycle(t *testing.T) {
	db := setupServiceDB(t)
	blobs := storage.NewMemory()
	validate := validator.New(validator.WithRequiredStructEnabled())
	evidenceRepo := repository.NewEvidenceRepository(db)
	resultRepo := repository.NewResultRepository(db)

	evidences := NewEvidenceService(
		evidenceRepo,
		repository.NewUserRepository(db),
		repository.NewCategoryRepository(db),
		repository.NewReportRepository(db),
		blobs, validate, nil,
		"http://files.test/evidencias/descargar", 10, testLogger(),
	)
	results := NewResultService(resultRepo, nil, 0, testLogger())
	gradings := NewGradingService(
		repository.NewGradingRepository(db), evidenceRepo,
		blobs, validate, nil, results, testLogger(),
	)

	instructor := seedInstructor(t, db)
	evaluator := seedEvaluatorUser(t, db)
	category := seedEvidenceCategory(t, db, "")

	created, err := evidences.Submit(context.Background(), dto.SubmitEvidenceRequest{
		Title:       "Portafolio final",
		Description: "evidencias del periodo",
		CategoryID:  category.ID,
		SubmitterID: instructor.ID,
		Form:        map[string]interface{}{"periodo": "2026-1"},
	}, []*multipart.FileHeader{fileHeader(t, "portafolio.pdf", "portafolio")})
	require.NoError(t, err)

	_, err = gradings.SavePartial(context.Background(), created.ID, dto.PartialSaveRequest{Score: 30, Remark: "primera pasada"})
	require.NoError(t, err)

	progress, err := gradings.LoadPartial(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, 30.0, progress.Score)

	_, err = gradings.SavePartial(context.Background(), created.ID, dto.PartialSaveRequest{Score: 48, Remark: "segunda pasada"})
	require.NoError(t, err)

	final, err := gradings.Finalize(context.Background(), created.ID, dto.FinalizeRequest{
		Score: 82, Remark: "aprobada", EvaluatorID: evaluator.ID,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, models.GradingStatusApproved, final.Status)

	rows, err := results.List(context.Background(), dto.ResultQuery{InstructorID: &instructor.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Portafolio final", rows[0].Evidence)
	require.Equal(t, instructor.FullName(), rows[0].Instructor)
	require.Equal(t, evaluator.FullName(), rows[0].Evaluator)
	require.Equal(t, 82.0, rows[0].Score)
	require.Equal(t, models.GradingStatusApproved, rows[0].Status)

	progress, err = gradings.LoadPartial(context.Background(), created.ID)
	require.NoError(t, err)
	require.Nil(t, progress, "no resumable progress survives a terminal grade")
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	km := newKeyedMutex()

	unlock := km.lock(7)
	require.Len(t, km.locks, 1)
	unlock()
	require.Empty(t, km.locks, "entry must be dropped once the last holder releases")

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := km.lock(7)
			counter++
			release()
		}()
	}
	wg.Wait()

	require.Equal(t, 16, counter)
	require.Empty(t, km.locks)
}

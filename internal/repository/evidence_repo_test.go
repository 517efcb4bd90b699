package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/evidia-go-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Report{},
		&models.Evidence{},
		&models.UploadHistoryRecord{},
		&models.GradingSession{},
		&models.GradeLine{},
		&models.ActivityLog{},
	))
	return db
}

func seedSubmitter(t *testing.T, db *gorm.DB) models.User {
	t.Helper()
	user := models.User{FirstName: "Laura", LastName: "Mendez", Email: t.Name() + "@example.com", RoleID: models.RoleInstructor}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func seedCategory(t *testing.T, db *gorm.DB) models.Category {
	t.Helper()
	category := models.Category{Name: "Certificaciones"}
	require.NoError(t, db.Create(&category).Error)
	return category
}

func seedEvidence(t *testing.T, db *gorm.DB, submitterID, categoryID uint, files ...string) models.Evidence {
	t.Helper()
	evidence := models.Evidence{
		Title:       "Informe de practica",
		Description: "descripcion",
		CategoryID:  categoryID,
		SubmitterID: submitterID,
		Files:       datatypes.JSONSlice[string](files),
		SubmittedAt: time.Now(),
		Status:      models.EvidenceStatusUploaded,
	}
	require.NoError(t, db.Create(&evidence).Error)
	return evidence
}

func TestEvidenceRepositoryCreateWithHistory(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvidenceRepository(db)
	user := seedSubmitter(t, db)
	category := seedCategory(t, db)

	uploadedAt := time.Now()
	evidence := models.Evidence{
		Title:       "Acta de visita",
		CategoryID:  category.ID,
		SubmitterID: user.ID,
		Files:       datatypes.JSONSlice[string]{"uploads/abc_acta.pdf"},
		Form:        datatypes.JSONMap{"campo": "valor"},
		SubmittedAt: uploadedAt,
		Status:      models.EvidenceStatusUploaded,
	}
	require.NoError(t, repo.CreateWithHistory(context.Background(), &evidence, uploadedAt))
	require.NotZero(t, evidence.ID)

	records, err := repo.HistoryByEvidence(context.Background(), evidence.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, user.ID, records[0].SubmitterID)

	stored, err := repo.GetByID(context.Background(), evidence.ID)
	require.NoError(t, err)
	require.Equal(t, "valor", stored.Form["campo"])
	require.Equal(t, "Certificaciones", stored.Category.Name)
}

func TestEvidenceRepositoryUpdateWithHistoryAppends(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvidenceRepository(db)
	user := seedSubmitter(t, db)
	category := seedCategory(t, db)
	evidence := seedEvidence(t, db, user.ID, category.ID, "uploads/v1_informe.pdf")
	require.NoError(t, repo.AppendHistory(context.Background(), &models.UploadHistoryRecord{
		EvidenceID:  evidence.ID,
		SubmitterID: user.ID,
		UploadedAt:  time.Now(),
	}))

	evidence.Files = datatypes.JSONSlice[string]{"uploads/v2_informe.pdf"}
	require.NoError(t, repo.UpdateWithHistory(context.Background(), &evidence, time.Now()))

	records, err := repo.HistoryByEvidence(context.Background(), evidence.ID)
	require.NoError(t, err)
	require.Len(t, records, 2, "every resubmission should append one history record")

	stored, err := repo.GetByID(context.Background(), evidence.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"uploads/v2_informe.pdf"}, []string(stored.Files))
}

func TestEvidenceRepositoryDeleteCascadesHistory(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvidenceRepository(db)
	user := seedSubmitter(t, db)
	category := seedCategory(t, db)
	evidence := seedEvidence(t, db, user.ID, category.ID, "uploads/x_anexo.pdf")
	require.NoError(t, repo.AppendHistory(context.Background(), &models.UploadHistoryRecord{
		EvidenceID:  evidence.ID,
		SubmitterID: user.ID,
		UploadedAt:  time.Now(),
	}))

	require.NoError(t, repo.Delete(context.Background(), evidence.ID))

	_, err := repo.GetByID(context.Background(), evidence.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var orphaned int64
	require.NoError(t, db.Model(&models.UploadHistoryRecord{}).
		Where("evidence_id = ?", evidence.ID).Count(&orphaned).Error)
	require.Zero(t, orphaned, "history records must not survive the evidence")
}

func TestEvidenceRepositoryDeleteMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvidenceRepository(db)

	err := repo.Delete(context.Background(), 9999)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestEvidenceRepositoryListFilters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvidenceRepository(db)
	first := seedSubmitter(t, db)
	second := models.User{FirstName: "Pedro", LastName: "Rojas", Email: "pedro@example.com", RoleID: models.RoleInstructor}
	require.NoError(t, db.Create(&second).Error)
	category := seedCategory(t, db)

	mine := seedEvidence(t, db, first.ID, category.ID, "uploads/a.pdf")
	graded := seedEvidence(t, db, first.ID, category.ID, "uploads/b.pdf")
	require.NoError(t, db.Model(&models.Evidence{}).Where("id = ?", graded.ID).
		Update("status", models.EvidenceStatusGraded).Error)
	seedEvidence(t, db, second.ID, category.ID, "uploads/c.pdf")

	bySubmitter, err := repo.List(context.Background(), EvidenceFilter{SubmitterID: &first.ID})
	require.NoError(t, err)
	require.Len(t, bySubmitter, 2)

	gradable, err := repo.List(context.Background(), EvidenceFilter{
		Statuses: []string{models.EvidenceStatusUploaded, models.EvidenceStatusDraft},
	})
	require.NoError(t, err)
	require.Len(t, gradable, 2)
	for _, evidence := range gradable {
		require.NotEqual(t, graded.ID, evidence.ID)
	}
	_ = mine
}

func TestEvidenceRepositoryHistoryBySubmitterNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvidenceRepository(db)
	user := seedSubmitter(t, db)
	category := seedCategory(t, db)
	evidence := seedEvidence(t, db, user.ID, category.ID, "uploads/h.pdf")

	older := time.Now().Add(-2 * time.Hour)
	newer := time.Now()
	require.NoError(t, repo.AppendHistory(context.Background(), &models.UploadHistoryRecord{
		EvidenceID: evidence.ID, SubmitterID: user.ID, UploadedAt: older,
	}))
	require.NoError(t, repo.AppendHistory(context.Background(), &models.UploadHistoryRecord{
		EvidenceID: evidence.ID, SubmitterID: user.ID, UploadedAt: newer,
	}))

	records, err := repo.HistoryBySubmitter(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.True(t, !records[0].UploadedAt.Before(records[1].UploadedAt))
	require.Equal(t, evidence.Title, records[0].Evidence.Title)
}

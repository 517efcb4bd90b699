package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/evidia-go-api/internal/models"
)

func seedEvaluator(t *testing.T, db *gorm.DB) models.User {
	t.Helper()
	user := models.User{FirstName: "Ana", LastName: "Torres", Email: t.Name() + "+eval@example.com", RoleID: models.RoleEvaluator}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func TestGradingRepositoryOpenSessionLifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradingRepository(db)
	instructor := seedSubmitter(t, db)

	_, err := repo.OpenSessionByInstructor(context.Background(), instructor.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	placeholder := 0.0
	session := models.GradingSession{
		InstructorID: instructor.ID,
		TotalScore:   &placeholder,
		GradedAt:     time.Now(),
		Status:       models.GradingStatusInProgress,
	}
	require.NoError(t, repo.CreateSession(context.Background(), &session))

	found, err := repo.OpenSessionByInstructor(context.Background(), instructor.ID)
	require.NoError(t, err)
	require.Equal(t, session.ID, found.ID)
	require.True(t, found.IsOpen())
}

func TestGradingRepositoryLineUpsertKeepsSingleRow(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradingRepository(db)
	instructor := seedSubmitter(t, db)
	category := seedCategory(t, db)
	evidence := seedEvidence(t, db, instructor.ID, category.ID, "uploads/e.pdf")

	placeholder := 0.0
	session := models.GradingSession{
		InstructorID: instructor.ID,
		TotalScore:   &placeholder,
		GradedAt:     time.Now(),
		Status:       models.GradingStatusInProgress,
	}
	require.NoError(t, repo.CreateSession(context.Background(), &session))

	line := models.GradeLine{SessionID: session.ID, EvidenceID: evidence.ID, Score: 30, Remark: "inicial"}
	require.NoError(t, repo.CreateLine(context.Background(), &line))

	line.Score = 45
	line.Remark = "ajustado"
	require.NoError(t, repo.UpdateLine(context.Background(), &line))

	var count int64
	require.NoError(t, db.Model(&models.GradeLine{}).
		Where("session_id = ? AND evidence_id = ?", session.ID, evidence.ID).
		Count(&count).Error)
	require.Equal(t, int64(1), count)

	stored, err := repo.OpenLineByEvidence(context.Background(), evidence.ID)
	require.NoError(t, err)
	require.Equal(t, 45.0, stored.Score)
	require.Equal(t, "ajustado", stored.Remark)
}

func TestGradingRepositoryFinalizeSupersedesOpenSessions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradingRepository(db)
	instructor := seedSubmitter(t, db)
	evaluator := seedEvaluator(t, db)
	category := seedCategory(t, db)
	evidence := seedEvidence(t, db, instructor.ID, category.ID, "uploads/f.pdf")

	placeholder := 0.0
	open := models.GradingSession{
		InstructorID: instructor.ID,
		TotalScore:   &placeholder,
		GradedAt:     time.Now(),
		Status:       models.GradingStatusInProgress,
	}
	require.NoError(t, repo.CreateSession(context.Background(), &open))
	require.NoError(t, repo.CreateLine(context.Background(), &models.GradeLine{
		SessionID: open.ID, EvidenceID: evidence.ID, Score: 20, Remark: "parcial",
	}))

	session, err := repo.Finalize(context.Background(), FinalizeParams{
		EvidenceID:   evidence.ID,
		InstructorID: instructor.ID,
		EvaluatorID:  evaluator.ID,
		Score:        80,
		Remark:       "completo",
		GradedAt:     time.Now(),
		Status:       models.GradingStatusApproved,
	})
	require.NoError(t, err)
	require.NotZero(t, session.ID)
	require.NotEqual(t, open.ID, session.ID)
	require.Len(t, session.Lines, 1)
	require.Equal(t, 80.0, session.Lines[0].Score)

	_, err = repo.OpenSessionByInstructor(context.Background(), instructor.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound, "open session must be superseded")

	var staleLines int64
	require.NoError(t, db.Model(&models.GradeLine{}).
		Where("session_id = ?", open.ID).Count(&staleLines).Error)
	require.Zero(t, staleLines)

	var stored models.Evidence
	require.NoError(t, db.First(&stored, evidence.ID).Error)
	require.Equal(t, models.EvidenceStatusGraded, stored.Status)
}

func TestGradingRepositoryFinalizeMissingEvidenceRollsBack(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradingRepository(db)
	instructor := seedSubmitter(t, db)
	evaluator := seedEvaluator(t, db)

	_, err := repo.Finalize(context.Background(), FinalizeParams{
		EvidenceID:   4242,
		InstructorID: instructor.ID,
		EvaluatorID:  evaluator.ID,
		Score:        60,
		GradedAt:     time.Now(),
		Status:       models.GradingStatusApproved,
	})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var sessions int64
	require.NoError(t, db.Model(&models.GradingSession{}).Count(&sessions).Error)
	require.Zero(t, sessions, "failed finalize must not leave a session behind")
}

func TestGradingRepositorySessionsByDateDesc(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradingRepository(db)
	instructor := seedSubmitter(t, db)

	older, newer := 40.0, 90.0
	require.NoError(t, repo.CreateSession(context.Background(), &models.GradingSession{
		InstructorID: instructor.ID, TotalScore: &older,
		GradedAt: time.Now().Add(-time.Hour), Status: models.GradingStatusRejected,
	}))
	require.NoError(t, repo.CreateSession(context.Background(), &models.GradingSession{
		InstructorID: instructor.ID, TotalScore: &newer,
		GradedAt: time.Now(), Status: models.GradingStatusApproved,
	}))

	sessions, err := repo.SessionsByDateDesc(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, 90.0, *sessions[0].TotalScore)
	require.Equal(t, 40.0, *sessions[1].TotalScore)
}

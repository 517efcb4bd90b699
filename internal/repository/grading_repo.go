package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/evidia-go-api/internal/models"
)

// FinalizeParams carries everything the terminal grading transaction writes.
type FinalizeParams struct {
	EvidenceID   uint
	InstructorID uint
	EvaluatorID  uint
	Score        float64
	Remark       string
	GradedAt     time.Time
	Status       string
}

// GradingRepository persists grading sessions and their grade lines.
type GradingRepository interface {
	OpenSessionByInstructor(ctx context.Context, instructorID uint) (models.GradingSession, error)
	CreateSession(ctx context.Context, session *models.GradingSession) error
	LineBySessionAndEvidence(ctx context.Context, sessionID, evidenceID uint) (models.GradeLine, error)
	OpenLineByEvidence(ctx context.Context, evidenceID uint) (models.GradeLine, error)
	CreateLine(ctx context.Context, line *models.GradeLine) error
	UpdateLine(ctx context.Context, line *models.GradeLine) error
	Finalize(ctx context.Context, params FinalizeParams) (models.GradingSession, error)
	SessionsByDateDesc(ctx context.Context) ([]models.GradingSession, error)
}

type gradingRepository struct {
	db *gorm.DB
}

// NewGradingRepository instantiates the repository.
func NewGradingRepository(db *gorm.DB) GradingRepository {
	return &gradingRepository{db: db}
}

func (r *gradingRepository) OpenSessionByInstructor(ctx context.Context, instructorID uint) (models.GradingSession, error) {
	var session models.GradingSession
	if err := r.db.WithContext(ctx).
		Where("instructor_id = ?", instructorID).
		Where("status = ?", models.GradingStatusInProgress).
		Order("id ASC").
		First(&session).Error; err != nil {
		return models.GradingSession{}, err
	}

	return session, nil
}

func (r *gradingRepository) CreateSession(ctx context.Context, session *models.GradingSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *gradingRepository) LineBySessionAndEvidence(ctx context.Context, sessionID, evidenceID uint) (models.GradeLine, error) {
	var line models.GradeLine
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Where("evidence_id = ?", evidenceID).
		First(&line).Error; err != nil {
		return models.GradeLine{}, err
	}

	return line, nil
}

// OpenLineByEvidence resolves the grade line an in-progress session holds for
// the evidence, if any.
func (r *gradingRepository) OpenLineByEvidence(ctx context.Context, evidenceID uint) (models.GradeLine, error) {
	var line models.GradeLine
	if err := r.db.WithContext(ctx).Model(&models.GradeLine{}).
		Joins("JOIN grading_sessions ON grading_sessions.id = grade_lines.session_id").
		Where("grade_lines.evidence_id = ?", evidenceID).
		Where("grading_sessions.status = ?", models.GradingStatusInProgress).
		First(&line).Error; err != nil {
		return models.GradeLine{}, err
	}

	return line, nil
}

func (r *gradingRepository) CreateLine(ctx context.Context, line *models.GradeLine) error {
	return r.db.WithContext(ctx).Create(line).Error
}

func (r *gradingRepository) UpdateLine(ctx context.Context, line *models.GradeLine) error {
	return r.db.WithContext(ctx).Save(line).Error
}

// Finalize runs the terminal grading sequence in one transaction: supersede
// any in-progress session for the instructor, create the terminal session and
// its single grade line, and flip the evidence to its graded state. Any
// failure rolls the whole sequence back.
func (r *gradingRepository) Finalize(ctx context.Context, params FinalizeParams) (models.GradingSession, error) {
	var session models.GradingSession

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open []models.GradingSession
		if err := tx.Where("instructor_id = ?", params.InstructorID).
			Where("status = ?", models.GradingStatusInProgress).
			Find(&open).Error; err != nil {
			return err
		}
		for _, stale := range open {
			if err := tx.Where("session_id = ?", stale.ID).Delete(&models.GradeLine{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.GradingSession{}, stale.ID).Error; err != nil {
				return err
			}
		}

		total := params.Score
		evaluatorID := params.EvaluatorID
		session = models.GradingSession{
			InstructorID: params.InstructorID,
			EvaluatorID:  &evaluatorID,
			TotalScore:   &total,
			GradedAt:     params.GradedAt,
			Status:       params.Status,
		}
		if err := tx.Create(&session).Error; err != nil {
			return err
		}

		line := models.GradeLine{
			SessionID:  session.ID,
			EvidenceID: params.EvidenceID,
			Score:      params.Score,
			Remark:     params.Remark,
		}
		if err := tx.Create(&line).Error; err != nil {
			return err
		}
		session.Lines = []models.GradeLine{line}

		result := tx.Model(&models.Evidence{}).
			Where("id = ?", params.EvidenceID).
			Update("status", models.EvidenceStatusGraded)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return nil
	})
	if err != nil {
		return models.GradingSession{}, err
	}

	return session, nil
}

func (r *gradingRepository) SessionsByDateDesc(ctx context.Context) ([]models.GradingSession, error) {
	var sessions []models.GradingSession
	if err := r.db.WithContext(ctx).Model(&models.GradingSession{}).
		Order("graded_at DESC, id DESC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}

	return sessions, nil
}

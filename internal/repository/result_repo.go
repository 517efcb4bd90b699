package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/evidia-go-api/internal/models"
)

// ResultFilter narrows the evaluator results projection.
type ResultFilter struct {
	InstructorID *uint
	EvaluatorID  *uint
	Score        *float64
	From         *time.Time
	To           *time.Time
}

// ResultRow is the flattened projection of one graded line joined to its
// session, evidence and the people involved.
type ResultRow struct {
	LineID         uint      `json:"line_id"`
	SessionID      uint      `json:"session_id"`
	EvidenceID     uint      `json:"evidence_id"`
	EvidenceTitle  string    `json:"evidence_title"`
	InstructorID   uint      `json:"instructor_id"`
	InstructorName string    `json:"instructor_name"`
	EvaluatorName  string    `json:"evaluator_name"`
	Score          float64   `json:"score"`
	Remark         string    `json:"remark"`
	Status         string    `json:"status"`
	GradedAt       time.Time `json:"graded_at"`
}

// ResultRepository serves the read-only result projection. It never mutates.
type ResultRepository interface {
	List(ctx context.Context, filter ResultFilter) ([]ResultRow, error)
}

type resultRepository struct {
	db *gorm.DB
}

// NewResultRepository instantiates the projection repository.
func NewResultRepository(db *gorm.DB) ResultRepository {
	return &resultRepository{db: db}
}

func (r *resultRepository) List(ctx context.Context, filter ResultFilter) ([]ResultRow, error) {
	query := r.db.WithContext(ctx).Model(&models.GradeLine{}).
		Select(`grade_lines.id AS line_id,
			grading_sessions.id AS session_id,
			evidences.id AS evidence_id,
			evidences.title AS evidence_title,
			instructors.id AS instructor_id,
			instructors.first_name || ' ' || instructors.last_name AS instructor_name,
			COALESCE(evaluators.first_name || ' ' || evaluators.last_name, '') AS evaluator_name,
			grade_lines.score AS score,
			grade_lines.remark AS remark,
			grading_sessions.status AS status,
			grading_sessions.graded_at AS graded_at`).
		Joins("JOIN grading_sessions ON grading_sessions.id = grade_lines.session_id").
		Joins("JOIN evidences ON evidences.id = grade_lines.evidence_id").
		Joins("JOIN users AS instructors ON instructors.id = evidences.submitter_id").
		Joins("LEFT JOIN users AS evaluators ON evaluators.id = grading_sessions.evaluator_id")

	if filter.InstructorID != nil {
		query = query.Where("instructors.id = ?", *filter.InstructorID)
	}
	if filter.EvaluatorID != nil {
		query = query.Where("grading_sessions.evaluator_id = ?", *filter.EvaluatorID)
	}
	if filter.Score != nil {
		query = query.Where("grade_lines.score = ?", *filter.Score)
	}
	if filter.From != nil {
		query = query.Where("grading_sessions.graded_at >= ?", *filter.From)
	}
	if filter.To != nil {
		// To carries a date at midnight; the whole bound day must be included.
		query = query.Where("grading_sessions.graded_at < ?", filter.To.AddDate(0, 0, 1))
	}

	var rows []ResultRow
	if err := query.Order("grading_sessions.graded_at DESC, grade_lines.id DESC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	return rows, nil
}

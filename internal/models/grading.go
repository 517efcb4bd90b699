package models

import "time"

// Grading session states. The legacy schema also declared "pendiente" and
// "finalizada" but no transition ever reached them; the state machine here is
// closed over the three values the engine actually produces.
const (
	// GradingStatusInProgress marks a resumable partial-save session.
	GradingStatusInProgress = "en_progreso"
	// GradingStatusApproved is terminal: the finalize score met the threshold.
	GradingStatusApproved = "aprobado"
	// GradingStatusRejected is terminal: the finalize score fell short.
	GradingStatusRejected = "rechazado"
)

// ApprovalThreshold is the minimum finalize score for an approved outcome.
const ApprovalThreshold = 50.0

// StatusForScore resolves the terminal session state for a finalize score.
func StatusForScore(score float64) string {
	if score >= ApprovalThreshold {
		return GradingStatusApproved
	}
	return GradingStatusRejected
}

// GradingSession is one evaluator's scoring pass over one instructor's
// evidence batch. TotalScore stays nil until finalization.
type GradingSession struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	InstructorID uint        `gorm:"not null;index" json:"instructor_id"`
	EvaluatorID  *uint       `gorm:"index" json:"evaluator_id"`
	TotalScore   *float64    `json:"total_score"`
	GradedAt     time.Time   `gorm:"not null" json:"graded_at"`
	Status       string      `gorm:"size:32;not null" json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Instructor   User        `gorm:"foreignKey:InstructorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"instructor"`
	Evaluator    *User       `gorm:"foreignKey:EvaluatorID" json:"evaluator,omitempty"`
	Lines        []GradeLine `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"lines"`
}

// IsOpen reports whether the session still accepts partial saves.
func (s GradingSession) IsOpen() bool {
	return s.Status == GradingStatusInProgress
}

// GradeLine is one scored reference from a session to a single evidence.
// At most one line exists per (session, evidence) pair; repeated partial
// saves update the line in place.
type GradeLine struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	SessionID  uint           `gorm:"not null;uniqueIndex:idx_grade_line_session_evidence" json:"session_id"`
	EvidenceID uint           `gorm:"not null;uniqueIndex:idx_grade_line_session_evidence" json:"evidence_id"`
	Score      float64        `gorm:"not null" json:"score"`
	Remark     string         `gorm:"type:text" json:"remark"`
	Session    GradingSession `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
	Evidence   Evidence       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

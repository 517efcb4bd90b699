package dto

import (
	"time"

	"github.com/noah-isme/evidia-go-api/internal/models"
)

// PartialSaveRequest carries one resumable scoring update.
type PartialSaveRequest struct {
	Score  float64 `json:"puntaje" validate:"gte=0,lte=100"`
	Remark string  `json:"observacion"`
}

// PartialProgressResponse is the saved progress returned when resuming.
type PartialProgressResponse struct {
	Score  float64 `json:"puntaje"`
	Remark string  `json:"observacion"`
}

// FinalizeRequest carries the terminal grading decision input.
type FinalizeRequest struct {
	Score       float64 `json:"puntaje" validate:"gte=0,lte=100"`
	Remark      string  `json:"observacion"`
	EvaluatorID uint    `json:"id_evaluador" validate:"required"`
}

// FinalizeResponse reports the outcome of a finalize operation, including
// where any supporting files ended up.
type FinalizeResponse struct {
	SessionID  uint     `json:"id_calificacion"`
	Status     string   `json:"estado"`
	SavedFiles []string `json:"archivos_guardados"`
}

// GradingHistoryResponse is one row of the evaluator's session history.
type GradingHistoryResponse struct {
	ID     uint    `json:"id"`
	Score  float64 `json:"puntaje"`
	Date   string  `json:"fecha"`
	Status string  `json:"estado"`
}

// PendingEvidenceResponse is one gradable evidence on the evaluator's queue.
type PendingEvidenceResponse struct {
	ID          uint                   `json:"id"`
	Title       string                 `json:"titulo"`
	Description string                 `json:"descripcion"`
	Files       []string               `json:"archivos"`
	Form        map[string]interface{} `json:"formulario"`
	Date        string                 `json:"fecha"`
	Status      string                 `json:"estado"`
	SubmitterID uint                   `json:"id_usuario_fk"`
}

// ResultQuery narrows the evaluator results view.
type ResultQuery struct {
	InstructorID *uint
	Score        *float64
	From         *time.Time
	To           *time.Time
}

// ResultResponse is one row of the filtered results view.
type ResultResponse struct {
	LineID     uint    `json:"id_detalle"`
	SessionID  uint    `json:"id_calificacion"`
	Evidence   string  `json:"evidencia"`
	Instructor string  `json:"instructor"`
	Evaluator  string  `json:"evaluador"`
	Score      float64 `json:"puntaje"`
	Remark     string  `json:"observaciones"`
	Status     string  `json:"estado"`
	Date       string  `json:"fecha"`
}

// NewGradingHistoryResponse maps a session to its history row.
func NewGradingHistoryResponse(session models.GradingSession) GradingHistoryResponse {
	score := 0.0
	if session.TotalScore != nil {
		score = *session.TotalScore
	}

	return GradingHistoryResponse{
		ID:     session.ID,
		Score:  score,
		Date:   formatWireDate(session.GradedAt),
		Status: session.Status,
	}
}

// NewPendingEvidenceResponse maps a gradable evidence onto the queue row.
func NewPendingEvidenceResponse(evidence models.Evidence) PendingEvidenceResponse {
	return PendingEvidenceResponse{
		ID:          evidence.ID,
		Title:       evidence.Title,
		Description: evidence.Description,
		Files:       append([]string(nil), evidence.Files...),
		Form:        evidence.Form,
		Date:        formatWireDate(evidence.SubmittedAt),
		Status:      evidence.Status,
		SubmitterID: evidence.SubmitterID,
	}
}

package dto

import (
	"path"
	"strings"
	"time"

	"github.com/noah-isme/evidia-go-api/internal/models"
)

const wireDateLayout = "2006-01-02"

// SubmitEvidenceRequest carries the multipart fields of a submission. Form is
// the optional structured document attached alongside the files.
type SubmitEvidenceRequest struct {
	Title       string                 `json:"titulo" validate:"required,max=150"`
	Description string                 `json:"descripcion" validate:"max=200"`
	CategoryID  uint                   `json:"id_categoria_fk" validate:"required"`
	SubmitterID uint                   `json:"id_usuario_fk" validate:"required"`
	ReportID    *uint                  `json:"reportes_id_reporte"`
	Form        map[string]interface{} `json:"formulario"`
}

// EditEvidenceRequest carries the partial-update fields of an edit. Empty
// values are indistinguishable from absent ones and leave the stored value
// untouched, matching the legacy wire behaviour.
type EditEvidenceRequest struct {
	Title       string `json:"titulo" validate:"max=150"`
	Description string `json:"descripcion" validate:"max=200"`
	CategoryID  uint   `json:"id_categoria_fk"`
}

// EvidenceResponse is the full representation returned after submit and edit.
type EvidenceResponse struct {
	ID          uint                   `json:"id"`
	Title       string                 `json:"titulo"`
	Description string                 `json:"descripcion"`
	CategoryID  uint                   `json:"id_categoria_fk"`
	SubmitterID uint                   `json:"id_usuario_fk"`
	ReportID    *uint                  `json:"reportes_id_reporte,omitempty"`
	Files       []string               `json:"archivos"`
	Form        map[string]interface{} `json:"formulario,omitempty"`
	Date        string                 `json:"fecha"`
	Status      string                 `json:"estado"`
}

// EvidenceSummaryResponse is the list-view projection.
type EvidenceSummaryResponse struct {
	ID          uint     `json:"id"`
	Title       string   `json:"titulo"`
	Description string   `json:"descripcion"`
	Date        string   `json:"fecha"`
	URLs        []string `json:"urls"`
	Status      string   `json:"estado"`
	Graded      bool     `json:"calificado"`
}

// EvidenceFileResponse is one downloadable file on the detail view.
type EvidenceFileResponse struct {
	Name string `json:"nombre"`
	URL  string `json:"url"`
}

// EvidenceDetailResponse is the detail-view projection with the reconstructed
// structured form and display-friendly file list.
type EvidenceDetailResponse struct {
	ID          uint                   `json:"id"`
	Title       string                 `json:"titulo"`
	Description string                 `json:"descripcion"`
	Category    string                 `json:"categoria"`
	Date        string                 `json:"fecha_evidencia"`
	Status      string                 `json:"estado"`
	Submitter   string                 `json:"usuario"`
	Form        map[string]interface{} `json:"formulario"`
	Files       []EvidenceFileResponse `json:"archivos"`
}

// UploadHistoryResponse is one row of the submitter's upload history view.
type UploadHistoryResponse struct {
	ID          uint     `json:"id"`
	EvidenceID  uint     `json:"id_evidencia"`
	Title       string   `json:"titulo"`
	Description string   `json:"descripcion"`
	Date        string   `json:"fecha"`
	Status      string   `json:"estado"`
	Files       []string `json:"archivos"`
}

// NewEvidenceResponse maps the model to its wire representation.
func NewEvidenceResponse(evidence models.Evidence) EvidenceResponse {
	return EvidenceResponse{
		ID:          evidence.ID,
		Title:       evidence.Title,
		Description: evidence.Description,
		CategoryID:  evidence.CategoryID,
		SubmitterID: evidence.SubmitterID,
		ReportID:    evidence.ReportID,
		Files:       append([]string(nil), evidence.Files...),
		Form:        evidence.Form,
		Date:        formatWireDate(evidence.SubmittedAt),
		Status:      evidence.Status,
	}
}

// NewEvidenceSummaryResponse builds the list projection; urlFor translates a
// stored reference into a download URL.
func NewEvidenceSummaryResponse(evidence models.Evidence, urlFor func(string) string) EvidenceSummaryResponse {
	urls := make([]string, 0, len(evidence.Files))
	for _, ref := range evidence.Files {
		urls = append(urls, urlFor(ref))
	}

	return EvidenceSummaryResponse{
		ID:          evidence.ID,
		Title:       evidence.Title,
		Description: evidence.Description,
		Date:        formatWireDate(evidence.SubmittedAt),
		URLs:        urls,
		Status:      evidence.Status,
		Graded:      evidence.IsGraded(),
	}
}

// NewEvidenceDetailResponse builds the detail projection.
func NewEvidenceDetailResponse(evidence models.Evidence, urlFor func(string) string) EvidenceDetailResponse {
	files := make([]EvidenceFileResponse, 0, len(evidence.Files))
	for _, ref := range evidence.Files {
		files = append(files, EvidenceFileResponse{
			Name: DisplayFileName(ref),
			URL:  urlFor(ref),
		})
	}

	return EvidenceDetailResponse{
		ID:          evidence.ID,
		Title:       evidence.Title,
		Description: evidence.Description,
		Category:    evidence.Category.Name,
		Date:        formatWireDate(evidence.SubmittedAt),
		Status:      evidence.Status,
		Submitter:   evidence.Submitter.FirstName,
		Form:        evidence.Form,
		Files:       files,
	}
}

// NewUploadHistoryResponse maps one history record joined to its evidence.
func NewUploadHistoryResponse(record models.UploadHistoryRecord) UploadHistoryResponse {
	return UploadHistoryResponse{
		ID:          record.ID,
		EvidenceID:  record.EvidenceID,
		Title:       record.Evidence.Title,
		Description: record.Evidence.Description,
		Date:        formatWireDate(record.UploadedAt),
		Status:      record.Evidence.Status,
		Files:       append([]string(nil), record.Evidence.Files...),
	}
}

// DisplayFileName strips the generated prefix from a stored reference,
// recovering the name the submitter originally uploaded.
func DisplayFileName(ref string) string {
	base := path.Base(strings.ReplaceAll(ref, "\\", "/"))
	if _, rest, found := strings.Cut(base, "_"); found && rest != "" {
		return rest
	}
	return base
}

func formatWireDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(wireDateLayout)
}

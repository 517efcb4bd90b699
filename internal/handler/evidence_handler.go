package handler

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"path"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/evidia-go-api/internal/dto"
	"github.com/noah-isme/evidia-go-api/internal/service"
	"github.com/noah-isme/evidia-go-api/internal/utils"
)

// EvidenceHandler exposes the instructor-facing evidence endpoints.
type EvidenceHandler struct {
	service service.EvidenceService
	logger  zerolog.Logger
}

// NewEvidenceHandler builds an evidence handler instance.
func NewEvidenceHandler(service service.EvidenceService, logger zerolog.Logger) *EvidenceHandler {
	return &EvidenceHandler{
		service: service,
		logger:  logger.With().Str("component", "evidence_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *EvidenceHandler) Register(router fiber.Router) {
	router.Post("/", h.submit)
	router.Post("/multiple", h.submitMultiple)
	router.Put("/:id", h.edit)
	router.Delete("/:id", h.remove)
	router.Get("/", h.list)
	router.Get("/historial", h.history)
	router.Get("/detalle/:id", h.detail)
	router.Get("/descargar/:filename", h.download)
}

func (h *EvidenceHandler) submit(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	return h.handleSubmit(c, []*multipart.FileHeader{file})
}

func (h *EvidenceHandler) submitMultiple(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid multipart form")
	}

	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}

	return h.handleSubmit(c, files)
}

func (h *EvidenceHandler) handleSubmit(c *fiber.Ctx, files []*multipart.FileHeader) error {
	payload, err := h.submitPayload(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	evidence, err := h.service.Submit(c.Context(), payload, files)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "evidencia registrada", evidence)
}

func (h *EvidenceHandler) submitPayload(c *fiber.Ctx) (dto.SubmitEvidenceRequest, error) {
	categoryID, err := parseFormUint(c, "id_categoria_fk")
	if err != nil {
		return dto.SubmitEvidenceRequest{}, err
	}
	submitterID, err := parseFormUint(c, "id_usuario_fk")
	if err != nil {
		return dto.SubmitEvidenceRequest{}, err
	}
	reportID, err := parseOptionalFormUint(c, "reportes_id_reporte")
	if err != nil {
		return dto.SubmitEvidenceRequest{}, err
	}

	payload := dto.SubmitEvidenceRequest{
		Title:       c.FormValue("titulo"),
		Description: c.FormValue("descripcion"),
		CategoryID:  categoryID,
		SubmitterID: submitterID,
		ReportID:    reportID,
	}

	if raw := c.FormValue("formulario_json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload.Form); err != nil {
			return dto.SubmitEvidenceRequest{}, errors.New("invalid formulario_json")
		}
	}

	return payload, nil
}

func (h *EvidenceHandler) edit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	payload := dto.EditEvidenceRequest{
		Title:       c.FormValue("titulo"),
		Description: c.FormValue("descripcion"),
	}
	if categoryID, err := parseOptionalFormUint(c, "id_categoria_fk"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	} else if categoryID != nil {
		payload.CategoryID = *categoryID
	}

	var files []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil && form != nil {
		files = form.File["files"]
		if len(files) == 0 {
			files = form.File["file"]
		}
	}

	evidence, err := h.service.Edit(c.Context(), id, payload, files)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "evidencia actualizada", evidence)
}

func (h *EvidenceHandler) remove(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(c.Context(), id, activityActorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "evidencia eliminada", nil)
}

func (h *EvidenceHandler) list(c *fiber.Ctx) error {
	submitterID, err := parseQueryUint(c, "usuario_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	evidences, err := h.service.List(c.Context(), submitterID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "evidencias recuperadas", evidences)
}

func (h *EvidenceHandler) history(c *fiber.Ctx) error {
	submitterID, err := parseQueryUint(c, "usuario_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if submitterID == nil {
		return utils.SendError(c, fiber.StatusBadRequest, "usuario_id is required")
	}

	records, err := h.service.History(c.Context(), *submitterID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "historial recuperado", records)
}

func (h *EvidenceHandler) detail(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	evidence, err := h.service.Detail(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "detalle recuperado", evidence)
}

func (h *EvidenceHandler) download(c *fiber.Ctx) error {
	filename := c.Params("filename")
	reader, err := h.service.Download(c.Context(), filename)
	if err != nil {
		return h.handleError(c, err)
	}

	c.Attachment(dto.DisplayFileName(path.Base(filename)))
	return c.SendStream(reader)
}

func (h *EvidenceHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrSubmitterNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "usuario no encontrado")
	case errors.Is(err, service.ErrCategoryNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "categoria no encontrada")
	case errors.Is(err, service.ErrReportNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "reporte no encontrado")
	case errors.Is(err, service.ErrEvidenceNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "evidencia no encontrada")
	case errors.Is(err, service.ErrFileNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "archivo no encontrado")
	case errors.Is(err, service.ErrEvidenceGraded):
		return utils.SendError(c, fiber.StatusConflict, "la evidencia ya fue evaluada")
	case errors.Is(err, service.ErrNoFiles):
		return utils.SendError(c, fiber.StatusBadRequest, "se requiere al menos un archivo")
	case errors.Is(err, service.ErrFileTooLarge):
		return utils.SendError(c, fiber.StatusBadRequest, "el archivo excede el tamano permitido")
	case errors.Is(err, service.ErrInvalidForm):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

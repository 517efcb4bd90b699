package handler

import (
	"errors"
	"mime/multipart"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/evidia-go-api/internal/dto"
	"github.com/noah-isme/evidia-go-api/internal/service"
	"github.com/noah-isme/evidia-go-api/internal/utils"
)

// GradingHandler exposes the evaluator endpoints: the gradable queue,
// resumable partial scoring, the terminal finalize and the results view.
type GradingHandler struct {
	gradings service.GradingService
	results  service.ResultService
	logger   zerolog.Logger
}

// NewGradingHandler builds a grading handler instance.
func NewGradingHandler(gradings service.GradingService, results service.ResultService, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		gradings: gradings,
		results:  results,
		logger:   logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Get("/resultados", h.listResults)
	router.Get("/data/evidencias", h.listPending)
	router.Get("/data/historial", h.listHistory)
	router.Post("/evidencia/:id/parcial", h.savePartial)
	router.Get("/evidencia/:id/avance", h.loadPartial)
	router.Post("/evidencia/:id", h.finalize)
}

func (h *GradingHandler) listResults(c *fiber.Ctx) error {
	var query dto.ResultQuery
	var err error

	if query.InstructorID, err = parseQueryUint(c, "instructor_id"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if query.Score, err = parseQueryFloat(c, "puntaje"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if query.From, err = parseQueryDate(c, "fecha_desde"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if query.To, err = parseQueryDate(c, "fecha_hasta"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	results, err := h.results.List(c.Context(), query)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "resultados recuperados", results)
}

func (h *GradingHandler) listPending(c *fiber.Ctx) error {
	evidences, err := h.gradings.PendingEvidences(c.Context())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "evidencias recuperadas", evidences)
}

func (h *GradingHandler) listHistory(c *fiber.Ctx) error {
	sessions, err := h.gradings.SessionHistory(c.Context())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "historial recuperado", sessions)
}

func (h *GradingHandler) savePartial(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.PartialSaveRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	progress, err := h.gradings.SavePartial(c.Context(), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "avance guardado", progress)
}

func (h *GradingHandler) loadPartial(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	progress, err := h.gradings.LoadPartial(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}
	if progress == nil {
		return utils.SendSuccess(c, "sin avance guardado", nil)
	}

	return utils.SendSuccess(c, "avance recuperado", progress)
}

func (h *GradingHandler) finalize(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	score, err := parseFormFloat(c, "puntaje")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	payload := dto.FinalizeRequest{
		Score:       score,
		Remark:      c.FormValue("observacion"),
		EvaluatorID: userIDFromContext(c),
	}
	if payload.EvaluatorID == 0 {
		if evaluatorID, err := parseOptionalFormUint(c, "id_evaluador"); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		} else if evaluatorID != nil {
			payload.EvaluatorID = *evaluatorID
		}
	}

	var files []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil && form != nil {
		files = form.File["archivos"]
		if len(files) == 0 {
			files = form.File["files"]
		}
	}

	result, err := h.gradings.Finalize(c.Context(), id, payload, files)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "evaluacion registrada", result)
}

func (h *GradingHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrEvidenceNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "evidencia no encontrada")
	case errors.Is(err, service.ErrEvidenceGraded):
		return utils.SendError(c, fiber.StatusConflict, "la evidencia ya fue evaluada")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

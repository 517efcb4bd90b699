package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/evidia-go-api/internal/dto"
	"github.com/noah-isme/evidia-go-api/internal/service"
	"github.com/noah-isme/evidia-go-api/internal/utils"
)

// ActivityHandler exposes the audit trail listing.
type ActivityHandler struct {
	service service.ActivityService
	logger  zerolog.Logger
}

// NewActivityHandler builds an activity handler instance.
func NewActivityHandler(service service.ActivityService, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
}

func (h *ActivityHandler) list(c *fiber.Ctx) error {
	req := dto.ActivityListRequest{
		Page:       c.QueryInt("page", 1),
		PageSize:   c.QueryInt("page_size", 20),
		Action:     c.Query("accion"),
		EntityType: c.Query("tabla"),
	}
	if actorID, err := parseQueryUint(c, "usuario_id"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	} else if actorID != nil {
		req.ActorID = *actorID
	}

	entries, err := h.service.List(c.Context(), req)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list activity log")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "bitacora recuperada", entries)
}

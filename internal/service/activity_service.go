package service

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/evidia-go-api/internal/dto"
	"github.com/noah-isme/evidia-go-api/internal/models"
	"github.com/noah-isme/evidia-go-api/internal/observability"
	"github.com/noah-isme/evidia-go-api/internal/repository"
)

const activityBufferSize = 64

// ActivityActor identifies the authenticated principal behind an action.
type ActivityActor struct {
	ID   uint
	Role string
}

// ActivityEntry captures one auditable event.
type ActivityEntry struct {
	ActorID    uint
	ActorRole  string
	Action     string
	EntityType string
	EntityID   *uint
	Metadata   map[string]interface{}
}

// ActivityRecorder is the fire-and-forget audit side channel. Record never
// blocks and never reports an error: audit failures must not affect the
// primary operation.
type ActivityRecorder interface {
	Record(entry ActivityEntry)
}

// ActivityService persists and serves the bitacora.
type ActivityService interface {
	ActivityRecorder
	Start(ctx context.Context)
	List(ctx context.Context, req dto.ActivityListRequest) (dto.ActivityListResponse, error)
}

type activityService struct {
	repo    repository.ActivityLogRepository
	nats    *nats.Conn
	subject string
	queue   chan ActivityEntry
	logger  zerolog.Logger
}

// NewActivityService constructs the audit trail service. natsConn may be nil
// when no broker is configured.
func NewActivityService(repo repository.ActivityLogRepository, natsConn *nats.Conn, subject string, logger zerolog.Logger) ActivityService {
	return &activityService{
		repo:    repo,
		nats:    natsConn,
		subject: strings.TrimSpace(subject),
		queue:   make(chan ActivityEntry, activityBufferSize),
		logger:  logger.With().Str("component", "activity_service").Logger(),
	}
}

// Record enqueues the entry for the background writer. When the buffer is
// full the entry is dropped rather than blocking the caller.
func (s *activityService) Record(entry ActivityEntry) {
	select {
	case s.queue <- entry:
	default:
		observability.AuditDropped().Inc()
		s.logger.Warn().Str("action", entry.Action).Msg("audit buffer full, entry dropped")
	}
}

// Start launches the background writer; it drains until ctx is cancelled.
func (s *activityService) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case entry := <-s.queue:
				s.persist(entry)
			}
		}
	}()
}

func (s *activityService) persist(entry ActivityEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	model := models.ActivityLog{
		ActorID:    entry.ActorID,
		ActorRole:  strings.ToLower(strings.TrimSpace(entry.ActorRole)),
		Action:     strings.ToLower(strings.TrimSpace(entry.Action)),
		EntityType: strings.ToLower(strings.TrimSpace(entry.EntityType)),
		EntityID:   entry.EntityID,
		Metadata:   datatypes.JSONMap(entry.Metadata),
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Warn().Err(err).Str("action", model.Action).Msg("failed to persist audit entry")
		return
	}

	s.publish(model)
}

// publish mirrors the entry onto the NATS side channel, best-effort.
func (s *activityService) publish(model models.ActivityLog) {
	if s.nats == nil || s.subject == "" {
		return
	}

	payload, err := json.Marshal(dto.NewActivityResponse(model))
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode audit event")
		return
	}
	if err := s.nats.Publish(s.subject, payload); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish audit event")
	}
}

func (s *activityService) List(ctx context.Context, req dto.ActivityListRequest) (dto.ActivityListResponse, error) {
	filter := repository.ActivityLogFilter{
		Page:       req.Page,
		PageSize:   req.PageSize,
		Action:     strings.ToLower(strings.TrimSpace(req.Action)),
		EntityType: strings.ToLower(strings.TrimSpace(req.EntityType)),
	}
	if req.ActorID > 0 {
		filter.ActorID = &req.ActorID
	}

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.ActivityListResponse{}, err
	}

	items := make([]dto.ActivityResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.NewActivityResponse(entry))
	}

	pagination := dto.PaginationMeta{
		Page:       maxInt(req.Page, 1),
		PageSize:   req.PageSize,
		TotalItems: total,
	}
	if req.PageSize > 0 {
		pagination.TotalPages = int(math.Ceil(float64(total) / float64(req.PageSize)))
	} else {
		pagination.TotalPages = 1
	}

	return dto.ActivityListResponse{Items: items, Pagination: pagination}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

package dto

import (
	"time"

	"github.com/noah-isme/evidia-go-api/internal/models"
)

// ActivityListRequest narrows the bitacora listing.
type ActivityListRequest struct {
	Page       int
	PageSize   int `validate:"gte=0,lte=200"`
	ActorID    uint
	Action     string `validate:"max=64"`
	EntityType string `validate:"max=64"`
}

// ActivityResponse is one audit trail entry on the wire.
type ActivityResponse struct {
	ID         uint                   `json:"id"`
	ActorID    uint                   `json:"id_usuario"`
	ActorRole  string                 `json:"rol"`
	Action     string                 `json:"accion"`
	EntityType string                 `json:"tabla_afectada"`
	EntityID   *uint                  `json:"id_registro_afectado"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"fecha_accion"`
}

// PaginationMeta describes the page window of a listing.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// ActivityListResponse is the paginated bitacora listing.
type ActivityListResponse struct {
	Items      []ActivityResponse `json:"items"`
	Pagination PaginationMeta     `json:"pagination"`
}

// NewActivityResponse maps an audit entry to the wire.
func NewActivityResponse(entry models.ActivityLog) ActivityResponse {
	return ActivityResponse{
		ID:         entry.ID,
		ActorID:    entry.ActorID,
		ActorRole:  entry.ActorRole,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   entry.Metadata,
		CreatedAt:  entry.CreatedAt,
	}
}

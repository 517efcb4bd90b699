package models

import (
	"time"

	"gorm.io/datatypes"
)

// Evidence lifecycle states. The wire values are the ones the legacy frontend
// expects, so they stay in Spanish.
const (
	// EvidenceStatusUploaded marks a freshly submitted evidence awaiting grading.
	EvidenceStatusUploaded = "Cargada"
	// EvidenceStatusDraft marks an evidence saved but not yet final.
	EvidenceStatusDraft = "Borrador"
	// EvidenceStatusGraded is terminal; a graded evidence is immutable.
	EvidenceStatusGraded = "Evaluada"
)

// Evidence represents one submitted artifact set: one or more stored files
// plus an optional structured form document.
type Evidence struct {
	ID          uint                        `gorm:"primaryKey" json:"id"`
	Title       string                      `gorm:"size:150;not null" json:"title"`
	Description string                      `gorm:"size:200" json:"description"`
	CategoryID  uint                        `gorm:"not null" json:"category_id"`
	SubmitterID uint                        `gorm:"not null;index" json:"submitter_id"`
	ReportID    *uint                       `json:"report_id"`
	Files       datatypes.JSONSlice[string] `json:"files"`
	Form        datatypes.JSONMap           `gorm:"type:json" json:"form"`
	SubmittedAt time.Time                   `gorm:"not null" json:"submitted_at"`
	Status      string                      `gorm:"size:32;not null;default:Cargada" json:"status"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`

	Category  Category              `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"category"`
	Submitter User                  `gorm:"foreignKey:SubmitterID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"submitter"`
	History   []UploadHistoryRecord `gorm:"foreignKey:EvidenceID" json:"-"`
}

// IsGraded reports whether the evidence reached its terminal state.
func (e Evidence) IsGraded() bool {
	return e.Status == EvidenceStatusGraded
}

// IsGradable reports whether an evaluator may still score this evidence.
func (e Evidence) IsGradable() bool {
	return e.Status == EvidenceStatusUploaded || e.Status == EvidenceStatusDraft
}

// UploadHistoryRecord is an append-only log entry written each time an
// evidence's file set is (re)submitted. Records are never mutated and only
// disappear as part of the evidence deletion cascade.
type UploadHistoryRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EvidenceID  uint      `gorm:"not null;index" json:"evidence_id"`
	SubmitterID uint      `gorm:"not null;index" json:"submitter_id"`
	UploadedAt  time.Time `gorm:"not null" json:"uploaded_at"`

	Evidence Evidence `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

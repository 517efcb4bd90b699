package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/evidia-go-api/internal/models"
)

// EvidenceFilter narrows evidence queries.
type EvidenceFilter struct {
	SubmitterID *uint
	Statuses    []string
}

// EvidenceRepository defines persistence operations for evidences and their
// append-only upload history.
type EvidenceRepository interface {
	List(ctx context.Context, filter EvidenceFilter) ([]models.Evidence, error)
	GetByID(ctx context.Context, id uint) (models.Evidence, error)
	Create(ctx context.Context, evidence *models.Evidence) error
	CreateWithHistory(ctx context.Context, evidence *models.Evidence, uploadedAt time.Time) error
	Update(ctx context.Context, evidence *models.Evidence) error
	UpdateWithHistory(ctx context.Context, evidence *models.Evidence, uploadedAt time.Time) error
	Delete(ctx context.Context, id uint) error
	AppendHistory(ctx context.Context, record *models.UploadHistoryRecord) error
	HistoryBySubmitter(ctx context.Context, submitterID uint) ([]models.UploadHistoryRecord, error)
	HistoryByEvidence(ctx context.Context, evidenceID uint) ([]models.UploadHistoryRecord, error)
}

type evidenceRepository struct {
	db *gorm.DB
}

// NewEvidenceRepository instantiates a GORM-backed repository.
func NewEvidenceRepository(db *gorm.DB) EvidenceRepository {
	return &evidenceRepository{db: db}
}

func (r *evidenceRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Evidence{}).
		Preload("Category").
		Preload("Submitter")
}

func (r *evidenceRepository) List(ctx context.Context, filter EvidenceFilter) ([]models.Evidence, error) {
	query := r.baseQuery(ctx)

	if filter.SubmitterID != nil {
		query = query.Where("submitter_id = ?", *filter.SubmitterID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}

	var evidences []models.Evidence
	if err := query.Order("submitted_at DESC, id DESC").Find(&evidences).Error; err != nil {
		return nil, err
	}

	return evidences, nil
}

func (r *evidenceRepository) GetByID(ctx context.Context, id uint) (models.Evidence, error) {
	var evidence models.Evidence
	if err := r.baseQuery(ctx).First(&evidence, id).Error; err != nil {
		return models.Evidence{}, err
	}

	return evidence, nil
}

func (r *evidenceRepository) Create(ctx context.Context, evidence *models.Evidence) error {
	return r.db.WithContext(ctx).Create(evidence).Error
}

// CreateWithHistory persists the evidence and its first upload history record
// atomically; a failure on either write rolls both back.
func (r *evidenceRepository) CreateWithHistory(ctx context.Context, evidence *models.Evidence, uploadedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(evidence).Error; err != nil {
			return err
		}

		record := models.UploadHistoryRecord{
			EvidenceID:  evidence.ID,
			SubmitterID: evidence.SubmitterID,
			UploadedAt:  uploadedAt,
		}
		return tx.Create(&record).Error
	})
}

func (r *evidenceRepository) Update(ctx context.Context, evidence *models.Evidence) error {
	return r.db.WithContext(ctx).Save(evidence).Error
}

// UpdateWithHistory saves the evidence and appends a fresh history record in
// one transaction. Used when an edit replaces the file set.
func (r *evidenceRepository) UpdateWithHistory(ctx context.Context, evidence *models.Evidence, uploadedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(evidence).Error; err != nil {
			return err
		}

		record := models.UploadHistoryRecord{
			EvidenceID:  evidence.ID,
			SubmitterID: evidence.SubmitterID,
			UploadedAt:  uploadedAt,
		}
		return tx.Create(&record).Error
	})
}

// Delete removes the evidence together with its upload history in one
// transaction. Stored files are the caller's responsibility.
func (r *evidenceRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("evidence_id = ?", id).Delete(&models.UploadHistoryRecord{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Evidence{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return nil
	})
}

func (r *evidenceRepository) AppendHistory(ctx context.Context, record *models.UploadHistoryRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *evidenceRepository) HistoryBySubmitter(ctx context.Context, submitterID uint) ([]models.UploadHistoryRecord, error) {
	var records []models.UploadHistoryRecord
	if err := r.db.WithContext(ctx).Model(&models.UploadHistoryRecord{}).
		Preload("Evidence").
		Where("submitter_id = ?", submitterID).
		Order("uploaded_at DESC, id DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

func (r *evidenceRepository) HistoryByEvidence(ctx context.Context, evidenceID uint) ([]models.UploadHistoryRecord, error) {
	var records []models.UploadHistoryRecord
	if err := r.db.WithContext(ctx).Model(&models.UploadHistoryRecord{}).
		Where("evidence_id = ?", evidenceID).
		Order("uploaded_at ASC, id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

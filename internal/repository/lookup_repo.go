package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/evidia-go-api/internal/models"
)

// UserRepository resolves principals referenced by submissions and gradings.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (models.User, error)
}

// CategoryRepository resolves evidence categories.
type CategoryRepository interface {
	GetByID(ctx context.Context, id uint) (models.Category, error)
}

// ReportRepository resolves parent certification reports.
type ReportRepository interface {
	GetByID(ctx context.Context, id uint) (models.Report, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository instantiates the user lookup repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return models.User{}, err
	}

	return user, nil
}

type categoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository instantiates the category lookup repository.
func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) GetByID(ctx context.Context, id uint) (models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).First(&category, id).Error; err != nil {
		return models.Category{}, err
	}

	return category, nil
}

type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository instantiates the report lookup repository.
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) GetByID(ctx context.Context, id uint) (models.Report, error) {
	var report models.Report
	if err := r.db.WithContext(ctx).First(&report, id).Error; err != nil {
		return models.Report{}, err
	}

	return report, nil
}

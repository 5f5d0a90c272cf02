package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/aman-churiwal/fetch-gateway/internal/models"
	"github.com/aman-churiwal/fetch-gateway/internal/storage"
)

type AdminUserRepository struct {
	db *storage.Postgres
}

func NewAdminUserRepository(db *storage.Postgres) *AdminUserRepository {
	return &AdminUserRepository{db: db}
}

func (r *AdminUserRepository) Create(ctx context.Context, user *models.AdminUser) error {
	return r.db.DB.WithContext(ctx).Create(user).Error
}

// Retrieves user by email, nil when missing
func (r *AdminUserRepository) FindByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	var user models.AdminUser
	err := r.db.DB.WithContext(ctx).
		Where("email = ?", email).
		First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

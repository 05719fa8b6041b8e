package dao

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parley/parley/sources/psql/models"
)

type RevokedTokenDAO struct {
	DB *gorm.DB
}

func NewRevokedTokenDAO(db *gorm.DB) *RevokedTokenDAO {
	return &RevokedTokenDAO{DB: db}
}

// Revoke is idempotent; revoking an already revoked jti is not an error.
func (dao *RevokedTokenDAO) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	return dao.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.RevokedToken{JTI: jti, ExpiresAt: expiresAt.UTC()}).Error
}

func (dao *RevokedTokenDAO) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var n int64
	err := dao.DB.WithContext(ctx).
		Model(&models.RevokedToken{}).
		Where("jti = ?", jti).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PurgeExpired drops rows whose token could no longer be presented anyway.
func (dao *RevokedTokenDAO) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := dao.DB.WithContext(ctx).
		Where("expires_at < ?", now.UTC()).
		Delete(&models.RevokedToken{})
	return res.RowsAffected, res.Error
}

package db

import (
	"context"

	"github.com/arencloud/bucketgw/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BucketMirror writes bucket ownership through to the side table.
type BucketMirror struct{ db *gorm.DB }

func NewBucketMirror(gdb *gorm.DB) *BucketMirror { return &BucketMirror{db: gdb} }

// Record upserts the row for bucket; a bucket name reused by another tenant
// after deletion takes over the row.
func (m *BucketMirror) Record(ctx context.Context, bucket string, tenant uuid.UUID) error {
	row := models.Bucket{Name: bucket, ProjectID: tenant.String()}
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"project_id", "updated_at"}),
	}).Create(&row).Error
}

// Forget deletes the row for bucket. A missing row is not an error.
func (m *BucketMirror) Forget(ctx context.Context, bucket string) error {
	return m.db.WithContext(ctx).Where("name = ?", bucket).Delete(&models.Bucket{}).Error
}

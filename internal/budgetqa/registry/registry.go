// Package registry 记录已导入的文档，导入时据此跳过内容未变的文件。
package registry

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kart-io/budgetqa/internal/model"
)

// Registry 文档登记表。
type Registry interface {
	// Get 按文件哈希查找记录，不存在时返回 found=false。
	Get(ctx context.Context, fileHash string) (*model.DocumentRecord, bool, error)
	// Save 新增或覆盖记录。
	Save(ctx context.Context, rec *model.DocumentRecord) error
	// DeleteByFilename 删除同名文件的全部旧记录，返回删除条数。
	DeleteByFilename(ctx context.Context, filename string) (int64, error)
	// List 按导入时间倒序列出记录。
	List(ctx context.Context) ([]*model.DocumentRecord, error)
}

type documents struct {
	db *gorm.DB
}

var _ Registry = (*documents)(nil)

// New 创建基于 GORM 的登记表并自动迁移表结构。
func New(ctx context.Context, db *gorm.DB) (Registry, error) {
	if err := db.WithContext(ctx).AutoMigrate(&model.DocumentRecord{}); err != nil {
		return nil, fmt.Errorf("migrate document registry: %w", err)
	}
	return &documents{db: db}, nil
}

func (d *documents) Get(ctx context.Context, fileHash string) (*model.DocumentRecord, bool, error) {
	var rec model.DocumentRecord
	err := d.db.WithContext(ctx).Where("file_hash = ?", fileHash).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

func (d *documents) Save(ctx context.Context, rec *model.DocumentRecord) error {
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error
}

func (d *documents) DeleteByFilename(ctx context.Context, filename string) (int64, error) {
	res := d.db.WithContext(ctx).Where("filename = ?", filename).Delete(&model.DocumentRecord{})
	return res.RowsAffected, res.Error
}

func (d *documents) List(ctx context.Context) ([]*model.DocumentRecord, error) {
	var recs []*model.DocumentRecord
	if err := d.db.WithContext(ctx).Order("ingested_at desc").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

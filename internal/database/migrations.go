package database

import (
	"errors"
	"time"

	"github.com/bloggy/backend/internal/articles"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationRepairNodeDepth = "2026-03-10_repair_node_depth"
	maxDepthRepairIterations = 10000
)

var errDepthRepairDiverged = errors.New("depth repair did not converge")

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRepairNodeDepth, apply: repairNodeDepth},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(migration.apply); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// repairNodeDepth recomputes depth as parent depth + 1, one tree level per pass.
func repairNodeDepth(db *gorm.DB) error {
	if err := db.Model(&articles.Article{}).
		Where("parent_id IS NULL AND depth <> 0").
		Update("depth", 0).Error; err != nil {
		return err
	}
	const fixChildren = `UPDATE articles SET depth = (
		SELECT parent.depth + 1 FROM articles AS parent WHERE parent.id = articles.parent_id
	) WHERE parent_id IS NOT NULL AND depth <> (
		SELECT parent.depth + 1 FROM articles AS parent WHERE parent.id = articles.parent_id
	)`
	for iteration := 0; iteration < maxDepthRepairIterations; iteration++ {
		result := db.Exec(fixChildren)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
	}
	return errDepthRepairDiverged
}

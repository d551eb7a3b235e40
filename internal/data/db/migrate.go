package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/scriptrunner-backend/internal/domain/scripts"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		// =========================
		// Scripts + execution results
		// =========================
		&types.Script{},
		&types.ScriptExecutionResult{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

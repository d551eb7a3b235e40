package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/scriptrunner-backend/internal/data/repos/scripts"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

type Repos struct {
	Script          scripts.ScriptRepo
	ExecutionResult scripts.ExecutionResultRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Script:          scripts.NewScriptRepo(db, log),
		ExecutionResult: scripts.NewExecutionResultRepo(db, log),
	}
}

package scripts

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/scriptrunner-backend/internal/domain/scripts"
	"github.com/yungbote/scriptrunner-backend/internal/pkg/dbctx"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

type ExecutionResultRepo interface {
	Create(dbc dbctx.Context, res *types.ScriptExecutionResult) (*types.ScriptExecutionResult, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ScriptExecutionResult, error)
}

type executionResultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExecutionResultRepo(db *gorm.DB, baseLog *logger.Logger) ExecutionResultRepo {
	return &executionResultRepo{
		db:  db,
		log: baseLog.With("repo", "ExecutionResultRepo"),
	}
}

func (r *executionResultRepo) Create(dbc dbctx.Context, res *types.ScriptExecutionResult) (*types.ScriptExecutionResult, error) {
	if res == nil {
		return nil, errors.New("nil execution result")
	}
	if err := dbc.Conn(r.db).Create(res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (r *executionResultRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ScriptExecutionResult, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.ScriptExecutionResult
	err := dbc.Conn(r.db).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

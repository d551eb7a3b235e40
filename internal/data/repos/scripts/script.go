package scripts

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/scriptrunner-backend/internal/domain/scripts"
	"github.com/yungbote/scriptrunner-backend/internal/pkg/dbctx"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

type ScriptRepo interface {
	Create(dbc dbctx.Context, scripts []*types.Script) ([]*types.Script, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Script, error)
}

type scriptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewScriptRepo(db *gorm.DB, baseLog *logger.Logger) ScriptRepo {
	return &scriptRepo{
		db:  db,
		log: baseLog.With("repo", "ScriptRepo"),
	}
}

func (r *scriptRepo) Create(dbc dbctx.Context, scripts []*types.Script) ([]*types.Script, error) {
	if len(scripts) == 0 {
		return []*types.Script{}, nil
	}
	if err := dbc.Conn(r.db).Create(&scripts).Error; err != nil {
		return nil, err
	}
	return scripts, nil
}

// GetByID returns nil, nil when no script has the id.
func (r *scriptRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Script, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var s types.Script
	err := dbc.Conn(r.db).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

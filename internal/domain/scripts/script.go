package scripts

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Kind string

const (
	// KindCheck scripts look for problems; any returned row is a finding.
	KindCheck Kind = "check"
	KindFix   Kind = "fix"
)

// Script is a stored SQL script a batch job can run. A job's ID is the
// script's ID.
type Script struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string         `gorm:"column:name;not null;index" json:"name"`
	Kind           Kind           `gorm:"column:kind;not null;index" json:"kind"`
	Body           string         `gorm:"column:body;type:text;not null" json:"body"`
	TimeoutSeconds int            `gorm:"column:timeout_seconds;not null;default:0" json:"timeout_seconds"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Script) TableName() string { return "script" }

func (s *Script) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// ScriptExecutionResult is the stored output of one script run.
type ScriptExecutionResult struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ScriptID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"script_id"`
	RowCount   int            `gorm:"column:row_count;not null;default:0" json:"row_count"`
	Truncated  bool           `gorm:"column:truncated;not null;default:false" json:"truncated"`
	Rows       datatypes.JSON `gorm:"column:rows;type:jsonb" json:"rows"`
	Error      string         `gorm:"column:error;type:text" json:"error,omitempty"`
	DurationMS int64          `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (ScriptExecutionResult) TableName() string { return "script_execution_result" }

func (r *ScriptExecutionResult) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

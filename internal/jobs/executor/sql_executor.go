package executor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/scriptrunner-backend/internal/data/repos/scripts"
	"github.com/yungbote/scriptrunner-backend/internal/domain/batch"
	types "github.com/yungbote/scriptrunner-backend/internal/domain/scripts"
	"github.com/yungbote/scriptrunner-backend/internal/jobs/orchestrator"
	"github.com/yungbote/scriptrunner-backend/internal/pkg/dbctx"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

const (
	DefaultTimeout = 5 * time.Minute
	// MaxStoredRows caps the rows persisted per result; RowCount is always exact.
	MaxStoredRows = 500
)

type Options struct {
	// Timeout applies to scripts that do not carry their own.
	Timeout time.Duration
}

// SQLExecutor runs stored SQL scripts. The job ID is the script ID.
type SQLExecutor struct {
	db      *gorm.DB
	scripts scripts.ScriptRepo
	results scripts.ExecutionResultRepo
	log     *logger.Logger
	timeout time.Duration
}

func NewSQLExecutor(db *gorm.DB, scriptRepo scripts.ScriptRepo, resultRepo scripts.ExecutionResultRepo, baseLog *logger.Logger, opts Options) *SQLExecutor {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SQLExecutor{
		db:      db,
		scripts: scriptRepo,
		results: resultRepo,
		log:     baseLog.With("component", "SQLExecutor"),
		timeout: timeout,
	}
}

var _ orchestrator.JobExecutor = (*SQLExecutor)(nil)

func (e *SQLExecutor) Execute(ctx context.Context, jobID string) (orchestrator.ExecutionResult, error) {
	scriptID, err := uuid.Parse(strings.TrimSpace(jobID))
	if err != nil {
		return orchestrator.ExecutionResult{Success: false, Message: fmt.Sprintf("invalid script id %q", jobID)}, nil
	}
	script, err := e.scripts.GetByID(dbctx.Context{Ctx: ctx}, scriptID)
	if err != nil {
		return orchestrator.ExecutionResult{}, fmt.Errorf("load script %s: %w", scriptID, err)
	}
	if script == nil {
		return orchestrator.ExecutionResult{Success: false, Message: fmt.Sprintf("script %s not found", scriptID)}, nil
	}

	timeout := e.timeout
	if script.TimeoutSeconds > 0 {
		timeout = time.Duration(script.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	rows, count, runErr := e.run(runCtx, script.Body)
	elapsed := time.Since(started)

	res := &types.ScriptExecutionResult{
		ScriptID:   script.ID,
		RowCount:   count,
		Truncated:  count > len(rows),
		DurationMS: elapsed.Milliseconds(),
	}
	if runErr != nil {
		res.Error = runErr.Error()
	}
	if b, err := json.Marshal(rows); err == nil {
		res.Rows = datatypes.JSON(b)
	}
	stored, storeErr := e.results.Create(dbctx.Context{Ctx: ctx}, res)
	if storeErr != nil {
		e.log.Warn("Failed to store script result", "script_id", script.ID, "error", storeErr)
	}

	var out orchestrator.ExecutionResult
	if stored != nil {
		out.ResultRef = stored.ID.String()
	}

	log := e.log.With("script_id", script.ID, "kind", script.Kind, "rows", count, "duration_ms", elapsed.Milliseconds())
	if runErr != nil {
		log.Warn("Script failed", "error", runErr)
		out.Message = runErr.Error()
		return out, nil
	}

	out.Success = true
	out.Message = fmt.Sprintf("%s finished in %s", script.Name, elapsed.Round(time.Millisecond))
	if script.Kind == types.KindCheck && count > 0 {
		out.StatusType = batch.JobStatusAttentionNeeded
		out.Findings = fmt.Sprintf("%d rows returned", count)
	}
	log.Info("Script finished")
	return out, nil
}

// run executes body in its own transaction and collects up to MaxStoredRows
// rows. The transaction is committed only when the script succeeds.
func (e *SQLExecutor) run(ctx context.Context, body string) ([]map[string]any, int, error) {
	out := []map[string]any{}
	count := 0
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := tx.Raw(body).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		for rows.Next() {
			count++
			if len(out) >= MaxStoredRows {
				continue
			}
			row, err := scanRow(rows, cols)
			if err != nil {
				return err
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out, count, fmt.Errorf("script timed out: %w", context.DeadlineExceeded)
	}
	return out, count, err
}

func scanRow(rows *sql.Rows, cols []string) (map[string]any, error) {
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make(map[string]any, len(cols))
	for i, c := range cols {
		if b, ok := vals[i].([]byte); ok {
			row[c] = string(b)
			continue
		}
		row[c] = vals[i]
	}
	return row, nil
}

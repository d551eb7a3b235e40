// seed_scripts loads every *.sql file in a directory into the script table
// and prints a batch submission body that runs them in file-name order.
//
//	go run ./scripts ./sql > batch.json
//	curl -XPOST localhost:8080/api/batches -d @batch.json
//
// Files named check_*.sql are check scripts; everything else is a fix script.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yungbote/scriptrunner-backend/internal/data/db"
	"github.com/yungbote/scriptrunner-backend/internal/data/repos/scripts"
	types "github.com/yungbote/scriptrunner-backend/internal/domain/scripts"
	"github.com/yungbote/scriptrunner-backend/internal/jobs/orchestrator"
	"github.com/yungbote/scriptrunner-backend/internal/pkg/dbctx"
	"github.com/yungbote/scriptrunner-backend/internal/platform/envutil"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

type submission struct {
	Jobs []orchestrator.JobSpec `json:"jobs"`
}

func main() {
	dir := "."
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		exitf("glob: %v", err)
	}
	if len(paths) == 0 {
		exitf("no .sql files in %s", dir)
	}
	sort.Strings(paths)

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		exitf("init logger: %v", err)
	}
	defer log.Sync()

	dbs, err := db.NewService(log, db.Config{
		PostgresDSN: envutil.String("POSTGRES_DSN", ""),
		SQLitePath:  envutil.String("SQLITE_PATH", "scriptrunner.db"),
	})
	if err != nil {
		exitf("open database: %v", err)
	}
	defer dbs.Close()
	if err := dbs.AutoMigrateAll(); err != nil {
		exitf("%v", err)
	}

	rows := make([]*types.Script, 0, len(paths))
	for _, p := range paths {
		body, err := os.ReadFile(p)
		if err != nil {
			exitf("read %s: %v", p, err)
		}
		name := strings.TrimSuffix(filepath.Base(p), ".sql")
		kind := types.KindFix
		if strings.HasPrefix(name, "check_") {
			kind = types.KindCheck
		}
		rows = append(rows, &types.Script{Name: name, Kind: kind, Body: string(body)})
	}

	repo := scripts.NewScriptRepo(dbs.DB(), log)
	created, err := repo.Create(dbctx.Context{Ctx: context.Background()}, rows)
	if err != nil {
		exitf("insert scripts: %v", err)
	}

	out := submission{Jobs: make([]orchestrator.JobSpec, 0, len(created))}
	for _, s := range created {
		out.Jobs = append(out.Jobs, orchestrator.JobSpec{
			JobID:   s.ID.String(),
			JobName: s.Name,
			Payload: string(s.Kind),
		})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		exitf("encode: %v", err)
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

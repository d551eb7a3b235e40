package testutil

import (
	"context"
	"testing"

	"gorm.io/gorm"

	types "github.com/yungbote/scriptrunner-backend/internal/domain/scripts"
)

func SeedScript(tb testing.TB, ctx context.Context, db *gorm.DB, name string, kind types.Kind, body string) *types.Script {
	tb.Helper()
	s := &types.Script{
		Name: name,
		Kind: kind,
		Body: body,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed script: %v", err)
	}
	return s
}

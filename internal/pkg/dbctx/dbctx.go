// Package dbctx carries the request context and an optional transaction into
// the repo layer.
package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context is the first argument of every repo method. Tx, when set, is the
// transaction the call must run in; when nil the repo falls back to its own
// *gorm.DB handle. Lifecycle persistence and the recall consumer pass Ctx
// only; the record write path sets Tx explicitly.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

package logging

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/invoice-ledger/internal/common"
)

// FromContext returns l (or the default logger) annotated with the run and
// document ids carried by ctx.
func FromContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	if id := common.RunIDFromContext(ctx); id != "" {
		l = l.With("run_id", id)
	}
	if id := common.DocumentIDFromContext(ctx); id != "" {
		l = l.With("document_id", id)
	}
	return l
}

package observability

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FlushTelemetry flushes buffered logs before exit. Metrics are pull-based and
// need no flush. Call after in-flight enrich requests have drained.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	if err := logger.Sync(); err != nil {
		return eris.Wrap(err, "flush logs")
	}
	return nil
}

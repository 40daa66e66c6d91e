package safe

import (
	"context"
	"io"
	"log/slog"

	"github.com/secmon-lab/searchlist/pkg/utils/logging"
)

// Close closes the store, storage reader or response body and logs a
// failure. A nil closer is ignored.
func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Warn("close failed", slog.Any("error", err))
	}
}

// Write writes a response body whose header is already committed, so a
// failure can only be logged.
func Write(ctx context.Context, w io.Writer, data []byte) {
	if w == nil {
		return
	}
	if _, err := w.Write(data); err != nil {
		logging.From(ctx).Warn("write failed", slog.Any("error", err))
	}
}

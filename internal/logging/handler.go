// Package logging provides a slog.Handler that mirrors warning-level and
// higher records into the events table.
package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/penlight/penlight/internal/store"
)

// EventHandler wraps a base slog.Handler and persists WARN+ records as
// events. Persistence is best effort; a failed insert never blocks logging.
type EventHandler struct {
	base    slog.Handler
	queries *store.Queries
	attrs   []slog.Attr
}

// NewEventHandler creates an EventHandler writing events through db.
func NewEventHandler(base slog.Handler, db *sql.DB) *EventHandler {
	return &EventHandler{
		base:    base,
		queries: store.New(db),
	}
}

// Enabled defers to the base handler.
func (h *EventHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle forwards the record to the base handler and mirrors WARN+ records
// into the events table.
func (h *EventHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.base.Handle(ctx, record)

	if record.Level >= slog.LevelWarn {
		h.persist(record)
	}

	return err
}

// WithAttrs implements slog.Handler.
func (h *EventHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	combined = append(combined, h.attrs...)
	combined = append(combined, attrs...)
	return &EventHandler{
		base:    h.base.WithAttrs(attrs),
		queries: h.queries,
		attrs:   combined,
	}
}

// WithGroup implements slog.Handler.
func (h *EventHandler) WithGroup(name string) slog.Handler {
	return &EventHandler{
		base:    h.base.WithGroup(name),
		queries: h.queries,
		attrs:   h.attrs,
	}
}

func (h *EventHandler) persist(record slog.Record) {
	metadata := make(map[string]any, record.NumAttrs()+len(h.attrs))
	for _, attr := range h.attrs {
		metadata[attr.Key] = attr.Value.Any()
	}
	record.Attrs(func(attr slog.Attr) bool {
		metadata[attr.Key] = attr.Value.Any()
		return true
	})

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		metadataJSON = []byte("{}")
	}

	level := "warn"
	if record.Level >= slog.LevelError {
		level = "error"
	}

	// Detached context: the triggering request may already be done
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _ = h.queries.CreateEvent(ctx, store.CreateEventParams{
		Level:     level,
		Category:  "log",
		Message:   record.Message,
		Metadata:  string(metadataJSON),
		CreatedAt: record.Time,
	})
}

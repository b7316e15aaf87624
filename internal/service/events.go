// Package service holds application services built on the store layer.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mileusna/useragent"

	"github.com/penlight/penlight/internal/geoip"
	"github.com/penlight/penlight/internal/store"
	"github.com/penlight/penlight/internal/util"
)

// Event categories.
const (
	CategoryAuth    = "auth"
	CategoryArticle = "article"
)

// Auth event messages.
const (
	EventLogin       = "user logged in"
	EventLoginFailed = "login failed"
	EventLogout      = "user logged out"
	EventRegistered  = "user registered"
)

// EventService records application events with request metadata.
type EventService struct {
	queries *store.Queries
	geo     *geoip.Lookup
}

// NewEventService creates an EventService. geo may be nil.
func NewEventService(db *sql.DB, geo *geoip.Lookup) *EventService {
	return &EventService{
		queries: store.New(db),
		geo:     geo,
	}
}

// LogAuth records an authentication event with browser, OS, and optional
// country metadata derived from the request. Recording is best effort.
func (s *EventService) LogAuth(r *http.Request, message string, userID int64, level string) {
	ua := useragent.Parse(r.UserAgent())

	metadata := map[string]any{
		"ip":      remoteIP(r),
		"browser": ua.Name,
		"os":      ua.OS,
	}
	if ua.Mobile {
		metadata["device"] = "mobile"
	}
	if country := s.geo.Country(remoteIP(r)); country != "" {
		metadata["country"] = country
	}

	s.record(r.Context(), store.CreateEventParams{
		Level:    level,
		Category: CategoryAuth,
		Message:  message,
		UserID:   util.NullInt64FromPtr(nonZero(userID)),
		Metadata: marshalMetadata(metadata),
	})
}

// LogArticle records an article lifecycle event (created, updated, deleted).
func (s *EventService) LogArticle(ctx context.Context, message string, userID, articleID int64) {
	s.record(ctx, store.CreateEventParams{
		Level:    "info",
		Category: CategoryArticle,
		Message:  message,
		UserID:   util.NullInt64(userID),
		Metadata: marshalMetadata(map[string]any{"article_id": articleID}),
	})
}

func (s *EventService) record(ctx context.Context, arg store.CreateEventParams) {
	arg.CreatedAt = time.Now()
	if _, err := s.queries.CreateEvent(ctx, arg); err != nil {
		slog.Error("failed to record event", "error", err, "category", arg.Category)
	}
}

func marshalMetadata(m map[string]any) string {
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func nonZero(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

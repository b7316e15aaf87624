// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/penlight/penlight/internal/store"
	"github.com/penlight/penlight/internal/upload"
)

// Scheduler owns the cron runner and its jobs.
type Scheduler struct {
	db      *sql.DB
	uploads *upload.Store
	cron    *cron.Cron
	logger  *slog.Logger
}

// New creates a scheduler for the given database and upload store.
func New(db *sql.DB, uploads *upload.Store, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		db:      db,
		uploads: uploads,
		cron:    cron.New(),
		logger:  logger,
	}
}

// Start registers the hourly orphaned-upload sweep and starts the runner.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc("@hourly", func() {
		if err := s.SweepOrphans(context.Background()); err != nil {
			s.logger.Error("orphan sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
	return nil
}

// Stop gracefully stops the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// SweepOrphans removes upload files no article or profile references.
// Best-effort old-file deletion during replacements can leak files when the
// process dies mid-cleanup; this job reclaims them.
func (s *Scheduler) SweepOrphans(ctx context.Context) error {
	queries := store.New(s.db)

	referenced := make(map[string]bool)

	articlePaths, err := queries.ListArticleImagePaths(ctx)
	if err != nil {
		return err
	}
	for _, p := range articlePaths {
		referenced[p] = true
	}

	userPaths, err := queries.ListUserImagePaths(ctx)
	if err != nil {
		return err
	}
	for _, p := range userPaths {
		referenced[p] = true
	}

	removed, err := s.uploads.Sweep(referenced, upload.SweepGrace)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.Info("orphan sweep finished", "removed", removed)
	}
	return nil
}

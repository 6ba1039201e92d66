package listener

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"wei/internal/config"
	"wei/internal/connectors"
	imapconnector "wei/internal/connectors/imap"
	"wei/internal/pipeline"
	"wei/internal/storage"
)

// Service runs the unattended loop: pull mail, file attachments into
// intake, run the pipeline over whatever intake holds, export the
// batch report.
type Service struct {
	db    *storage.DB
	cfg   config.Config
	sched *pipeline.Scheduler
	log   *slog.Logger
}

func NewService(db *storage.DB, cfg config.Config, sched *pipeline.Scheduler, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, cfg: cfg, sched: sched, log: log}
}

func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.runCycle(ctx); err != nil {
			s.log.Error("listener.cycle.error", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(s.cfg.MailListenerIntervalSec) * time.Second):
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	mailConnector, err := imapconnector.NewConnector(s.cfg)
	if err != nil {
		return err
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, s.cfg.IntakeDir, mailConnector, s.log)
	fetchResult, err := fetchService.FetchAndStore(s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return err
	}

	paths, err := pipeline.ScanIntakeDir(s.cfg.IntakeDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		s.log.Info("listener.cycle.idle", "fetched", fetchResult.Fetched)
		return nil
	}

	summary, err := s.sched.Run(ctx, paths)
	if err != nil {
		return err
	}

	if s.cfg.MailListenerAutoExport {
		filename := fmt.Sprintf("batch_%s.xlsx", time.Now().Format("20060102_150405"))
		outputPath := filepath.Join(s.cfg.OutputDir, "listener", filename)
		if err := pipeline.ExportOutcomesToXLSX(summary.Outcomes, outputPath); err != nil {
			return err
		}
		_ = s.db.SetMetadata("last_export", outputPath)
	}

	s.log.Info("listener.cycle.done",
		"trace_id", summary.TraceID,
		"fetched", fetchResult.Fetched,
		"attachments", fetchResult.Attachments,
		"documents", len(summary.Outcomes),
	)
	return nil
}

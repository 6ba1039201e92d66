package erp

import (
	"context"
	"log/slog"

	"wei/internal"
)

// Executor carries reconciled tasks into the procurement backend.
// Implementations select the matched requirement rows and trigger
// purchase-order generation.
type Executor interface {
	Execute(ctx context.Context, tasks []internal.ExecutionTask, selectedIDs []string) error
}

// LogExecutor records what would be executed without touching the
// backend. It is the default until a write-capable integration is
// configured.
type LogExecutor struct {
	log *slog.Logger
}

func NewLogExecutor(log *slog.Logger) *LogExecutor {
	if log == nil {
		log = slog.Default()
	}
	return &LogExecutor{log: log}
}

func (e *LogExecutor) Execute(_ context.Context, tasks []internal.ExecutionTask, selectedIDs []string) error {
	for _, task := range tasks {
		e.log.Info("erp.execute.task",
			"match_type", string(task.MatchType),
			"record_id", task.Record.ID,
			"items", len(task.Items),
		)
	}
	e.log.Info("erp.execute.done", "tasks", len(tasks), "records_selected", len(selectedIDs))
	return nil
}

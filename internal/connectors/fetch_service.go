package connectors

import (
	"log/slog"

	"wei/internal/storage"
)

type FetchService struct {
	db        *storage.DB
	connector MailConnector
	store     *MailStoreService
	log       *slog.Logger
}

type FetchResult struct {
	Fetched     int
	Stored      int
	Attachments int
}

func NewFetchService(db *storage.DB, rawMailDir, intakeDir string, connector MailConnector, log *slog.Logger) *FetchService {
	if log == nil {
		log = slog.Default()
	}
	return &FetchService{
		db:        db,
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir, intakeDir, log),
		log:       log,
	}
}

// FetchAndStore pulls unread messages and files their document
// attachments into intake. Messages already recorded are not stored
// again.
func (s *FetchService) FetchAndStore(label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(label, max)
	if err != nil {
		return FetchResult{}, err
	}

	result := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		known, err := s.db.HasMailMessage(msg.Provider, msg.MessageID)
		if err != nil {
			return result, err
		}
		if known {
			continue
		}
		saved, err := s.store.Store(msg)
		if err != nil {
			return result, err
		}
		result.Stored++
		result.Attachments += saved
	}

	s.log.Info("connectors.fetch.done",
		"fetched", result.Fetched,
		"stored", result.Stored,
		"attachments", result.Attachments,
	)
	return result, nil
}

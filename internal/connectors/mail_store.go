package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhillyerd/enmime"

	"wei/internal"
	"wei/internal/storage"
	"wei/internal/util"
)

// MailStoreService archives a fetched message and drops its document
// attachments into the intake directory. The raw message is kept under
// its content hash so repeated fetches are idempotent.
type MailStoreService struct {
	db         *storage.DB
	rawMailDir string
	intakeDir  string
	log        *slog.Logger
}

func NewMailStoreService(db *storage.DB, rawMailDir, intakeDir string, log *slog.Logger) *MailStoreService {
	if log == nil {
		log = slog.Default()
	}
	return &MailStoreService{db: db, rawMailDir: rawMailDir, intakeDir: intakeDir, log: log}
}

// Store returns the number of document attachments written to intake.
func (s *MailStoreService) Store(msg internal.FetchedMailMessage) (int, error) {
	hashBytes := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(hashBytes[:])

	if err := os.MkdirAll(s.rawMailDir, 0o755); err != nil {
		return 0, err
	}

	rawPath := filepath.Join(s.rawMailDir, hash+".eml")
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return 0, err
		}
	}

	saved, err := s.saveAttachments(msg.Raw, hash)
	if err != nil {
		s.log.Warn("connectors.store.attachments_failed", "message_id", msg.MessageID, "error", err)
	}

	subject := util.CompactSpaces(msg.Subject)
	if err := s.db.UpsertMailMessage(msg.Provider, msg.MessageID, subject, msg.From, msg.ReceivedAt, hash, rawPath, "fetched"); err != nil {
		return saved, err
	}
	return saved, nil
}

func isDocumentAttachment(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".pdf":
		return true
	default:
		return false
	}
}

func (s *MailStoreService) saveAttachments(raw []byte, hash string) (int, error) {
	env, err := enmime.ReadEnvelope(strings.NewReader(string(raw)))
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(s.intakeDir, 0o755); err != nil {
		return 0, err
	}

	saved := 0
	parts := append(env.Attachments, env.Inlines...)
	for i, part := range parts {
		if part.FileName == "" || !isDocumentAttachment(part.FileName) {
			continue
		}
		// Prefix with the message hash so attachments from different
		// mails never collide, and re-fetches resolve to the same stem.
		name := fmt.Sprintf("%s-%d%s", hash[:12], i, strings.ToLower(filepath.Ext(part.FileName)))
		target := filepath.Join(s.intakeDir, name)
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := os.WriteFile(target, part.Content, 0o644); err != nil {
			return saved, err
		}
		s.log.Info("connectors.store.attachment_saved", "file", name, "original", part.FileName)
		saved++
	}
	return saved, nil
}

package refdata

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"wei/internal/config"
)

// Cache loads reference tables from spreadsheet sources and keeps a
// JSON sidecar per table. A table is re-parsed only when the sidecar is
// absent or older than the source file; the sidecar rewrite is
// best-effort and atomic-by-replace, so a lost write race costs one
// redundant re-parse, never corruption.
type Cache struct {
	cfg config.Config
	log *slog.Logger
	mu  sync.Mutex
}

type tablePayload struct {
	SourceModTime time.Time          `json:"source_mtime"`
	Values        []string           `json:"values,omitempty"`
	Agents        map[string]string  `json:"agents,omitempty"`
	Amounts       map[string]float64 `json:"amounts,omitempty"`
}

func NewCache(cfg config.Config, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{cfg: cfg, log: log}
}

func (c *Cache) StyleCodes() *Set {
	payload := c.load("styles", c.cfg.StyleDBPath, func(path string) (tablePayload, error) {
		values, err := parseStyleWorkbook(path, c.cfg.StyleDBColumn)
		return tablePayload{Values: values}, err
	})
	return NewSet(payload.Values)
}

func (c *Cache) Suppliers() (*Set, map[string]string) {
	payload := c.load("suppliers", c.cfg.SupplierDBPath, func(path string) (tablePayload, error) {
		values, agents, err := parseSupplierWorkbook(path, c.cfg.SupplierAgentColumn)
		return tablePayload{Values: values, Agents: agents}, err
	})
	agents := payload.Agents
	if agents == nil {
		agents = map[string]string{}
	}
	return NewSet(payload.Values), agents
}

func (c *Cache) Deductions() map[string]float64 {
	payload := c.load("deductions", c.cfg.DeductionDBPath, func(path string) (tablePayload, error) {
		amounts, err := parseDeductionWorkbook(path)
		return tablePayload{Amounts: amounts}, err
	})
	if payload.Amounts == nil {
		return map[string]float64{}
	}
	return payload.Amounts
}

func (c *Cache) load(table, source string, parse func(string) (tablePayload, error)) tablePayload {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := os.Stat(source)
	if err != nil {
		c.log.Warn("refdata.load.source_missing", "table", table, "source", source, "error", err)
		return tablePayload{}
	}

	sidecar := c.sidecarPath(table)
	if cached, ok := c.readSidecar(sidecar, info.ModTime()); ok {
		return cached
	}

	payload, err := parse(source)
	if err != nil {
		c.log.Error("refdata.load.parse_failed", "table", table, "source", source, "error", err)
		return tablePayload{}
	}
	payload.SourceModTime = info.ModTime()

	if err := c.writeSidecar(sidecar, payload); err != nil {
		c.log.Warn("refdata.load.sidecar_write_failed", "table", table, "error", err)
	}

	c.log.Info("refdata.load.parsed", "table", table, "values", len(payload.Values), "agents", len(payload.Agents), "amounts", len(payload.Amounts))
	return payload
}

func (c *Cache) sidecarPath(table string) string {
	return filepath.Join(c.cfg.CacheDir, table+".json")
}

func (c *Cache) readSidecar(path string, sourceMod time.Time) (tablePayload, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return tablePayload{}, false
	}
	if info.ModTime().Before(sourceMod) {
		return tablePayload{}, false
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		return tablePayload{}, false
	}
	var payload tablePayload
	if err := json.Unmarshal(blob, &payload); err != nil {
		return tablePayload{}, false
	}
	return payload, true
}

func (c *Cache) writeSidecar(path string, payload tablePayload) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp-%d", path, os.Getpid())
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

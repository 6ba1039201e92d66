package pipeline

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"wei/internal"
)

var supportedExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".pdf":  {},
}

// ScanIntakeDir lists the processable documents in a directory, sorted
// by name so batches are deterministic.
func ScanIntakeDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := supportedExts[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Stem is the filename without directory or extension; it keys the
// document's state across re-runs.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func Ext(path string) string {
	return filepath.Ext(path)
}

var styleCodePattern = regexp.MustCompile(`[THXDLSF][0-9A-Z-]{3,}`)

// ProbePDFStyleCandidates reads a PDF's text layer for code-like
// tokens. Scanned PDFs have no text layer; that is not an error, the
// vision read just gets no seeds.
func ProbePDFStyleCandidates(path string, log *slog.Logger) []internal.StyleCandidate {
	if log == nil {
		log = slog.Default()
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		log.Warn("pipeline.intake.pdf_open_failed", "path", path, "error", err)
		return nil
	}
	defer f.Close()

	var texts []string
	for page := 1; page <= reader.NumPage(); page++ {
		p := reader.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		texts = append(texts, content)
	}

	seen := map[string]struct{}{}
	var candidates []internal.StyleCandidate
	for _, text := range texts {
		for _, token := range styleCodePattern.FindAllString(strings.ToUpper(text), -1) {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			candidates = append(candidates, internal.StyleCandidate{Text: token, Position: "文本层"})
		}
	}
	if len(candidates) > 0 {
		log.Debug("pipeline.intake.pdf_candidates", "path", path, "count", len(candidates))
	}
	return candidates
}

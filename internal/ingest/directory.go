package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/joseph-ayodele/invoice-ledger/constants"
	"github.com/joseph-ayodele/invoice-ledger/internal/common"
	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
)

// ScanConfig configures a one-shot directory listing.
type ScanConfig struct {
	Dir        string
	Extensions map[string]struct{} // lowercased sans '.'; empty -> defaults
	SkipHidden bool                // also skips '~' temp files
	Identity   constants.IdentityStrategy
	Source     constants.DocumentSource // defaults to local-scan
}

// Scanner lists a directory once (non-recursive).
type Scanner struct {
	cfg    ScanConfig
	logger *slog.Logger
}

func NewScanner(cfg ScanConfig, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Source == "" {
		cfg.Source = constants.SourceLocalScan
	}
	return &Scanner{cfg: cfg, logger: logger}
}

// Scan returns the qualifying documents in filename order together with listing stats.
// A missing or unreadable directory is an error; a bad entry only counts as Failed.
func (s *Scanner) Scan(ctx context.Context) ([]entity.Document, DirStats, error) {
	var stats DirStats
	if strings.TrimSpace(s.cfg.Dir) == "" {
		return nil, stats, common.Mark(errors.New("scan directory is required"), common.ErrInvalidInput)
	}

	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, stats, common.Mark(errors.Wrapf(err, "read dir %s", s.cfg.Dir), common.ErrInvalidInput)
	}

	var docs []entity.Document
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return docs, stats, err
		}
		stats.Scanned++
		name := e.Name()
		if e.IsDir() || !s.accepts(name) {
			stats.Skipped++
			continue
		}
		stats.Matched++

		doc, err := NewDocument(filepath.Join(s.cfg.Dir, name), s.cfg.Source, s.cfg.Identity)
		if err != nil {
			stats.Failed++
			s.logger.Warn("ingest.scan.entry_failed", "file", name, "error", err)
			continue
		}
		docs = append(docs, doc)
	}

	s.logger.Info("ingest.scan.done",
		"dir", s.cfg.Dir,
		"extensions", extList(s.cfg.Extensions),
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	return docs, stats, nil
}

// Produce lists the directory up front so a missing directory fails at startup,
// then streams the documents and closes the channel.
func (s *Scanner) Produce(ctx context.Context) (<-chan entity.Document, error) {
	docs, _, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan entity.Document)
	go func() {
		defer close(out)
		for _, d := range docs {
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Scanner) accepts(name string) bool {
	if s.cfg.SkipHidden {
		return Qualifies(name, s.cfg.Extensions)
	}
	return AllowedExt(filepath.Ext(name), s.cfg.Extensions)
}

package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"reelstream/internal/config"
	"reelstream/internal/logging"
	"reelstream/internal/queue"
)

// PriorityMode controls the order discovered sources are enqueued in.
type PriorityMode string

const (
	ModeAlphabetical PriorityMode = "alphabetical"
	ModeSize         PriorityMode = "size"
	ModeDate         PriorityMode = "date"
)

// ParsePriorityMode converts a string into a known PriorityMode. Empty
// input maps to alphabetical.
func ParsePriorityMode(value string) (PriorityMode, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(ModeAlphabetical):
		return ModeAlphabetical, true
	case string(ModeSize):
		return ModeSize, true
	case string(ModeDate):
		return ModeDate, true
	default:
		return "", false
	}
}

type candidate struct {
	path     string
	size     int64
	modified time.Time
}

// Scanner walks the library root for eligible sources.
type Scanner struct {
	libraryDir string
	extensions map[string]struct{}
	store      *queue.Store
	// alreadyTranscoded reports whether a source has finished output on
	// disk and can be skipped.
	alreadyTranscoded func(sourcePath string) bool
	logger            *slog.Logger
}

// New builds a scanner. alreadyTranscoded may be nil, in which case no
// sources are skipped for existing output.
func New(cfg *config.Config, store *queue.Store, alreadyTranscoded func(string) bool, logger *slog.Logger) *Scanner {
	extensions := make(map[string]struct{}, len(cfg.Transcoding.SourceExtensions))
	for _, ext := range cfg.Transcoding.SourceExtensions {
		extensions[strings.ToLower(ext)] = struct{}{}
	}
	return &Scanner{
		libraryDir:        cfg.Paths.LibraryDir,
		extensions:        extensions,
		store:             store,
		alreadyTranscoded: alreadyTranscoded,
		logger:            logging.WithComponent(logger, "scanner"),
	}
}

// Scan discovers eligible sources, orders them by mode, and enqueues each
// at normal priority. Paths already queued or running are dedup'd by the
// store. Returns the number of jobs added. Cancellation is checked between
// entries so a long walk stops promptly.
func (s *Scanner) Scan(ctx context.Context, mode PriorityMode) (int, error) {
	candidates, err := s.discover(ctx)
	if err != nil {
		return 0, err
	}
	orderCandidates(candidates, mode)

	added := 0
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		_, wasAdded, err := s.store.Enqueue(ctx, cand.path, queue.PriorityNormal)
		if err != nil {
			return added, fmt.Errorf("enqueue %s: %w", cand.path, err)
		}
		if wasAdded {
			added++
		}
	}

	s.logger.Info("library scan finished",
		logging.String("mode", string(mode)),
		logging.Int("eligible", len(candidates)),
		logging.Int("added", added),
	)
	return added, nil
}

func (s *Scanner) discover(ctx context.Context) ([]candidate, error) {
	var candidates []candidate
	err := filepath.WalkDir(s.libraryDir, func(path string, entry fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// The walk root failing to stat fails the whole scan; a
			// vanished or unreadable entry below it skips itself.
			if entry == nil {
				return err
			}
			s.logger.Warn("scan entry unreadable", logging.String("path", path), logging.Error(err))
			if entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := s.extensions[ext]; !ok {
			return nil
		}
		if s.alreadyTranscoded != nil && s.alreadyTranscoded(path) {
			return nil
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			return nil
		}
		candidates = append(candidates, candidate{
			path:     path,
			size:     info.Size(),
			modified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("library directory %s does not exist", s.libraryDir)
		}
		return nil, err
	}
	return candidates, nil
}

// orderCandidates sorts in-place: alphabetical uses locale-aware collation
// on the path, size puts the smallest sources first for quick wins, date
// puts the newest sources first.
func orderCandidates(candidates []candidate, mode PriorityMode) {
	switch mode {
	case ModeSize:
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].size < candidates[j].size
		})
	case ModeDate:
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].modified.After(candidates[j].modified)
		})
	default:
		collator := collate.New(language.Und, collate.IgnoreCase)
		sort.SliceStable(candidates, func(i, j int) bool {
			return collator.CompareString(candidates[i].path, candidates[j].path) < 0
		})
	}
}

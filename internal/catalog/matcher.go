package catalog

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"reelstream/internal/queue"
)

// Matcher resolves a source path to a catalog entry, or reports no match.
// Matchers are tried in chain order so the fallback sequence stays
// auditable.
type Matcher interface {
	Name() string
	Match(sourcePath string, entries []*Entry) *Entry
}

// DefaultMatchers is the production fallback chain: exact path, then
// season/episode pattern, then filename substring.
func DefaultMatchers() []Matcher {
	return []Matcher{
		exactPathMatcher{},
		seasonEpisodeMatcher{},
		filenameSubstringMatcher{},
	}
}

// Resolve walks the chain and returns the first match along with the name
// of the matcher that produced it.
func Resolve(matchers []Matcher, sourcePath string, entries []*Entry) (*Entry, string) {
	for _, m := range matchers {
		if entry := m.Match(sourcePath, entries); entry != nil {
			return entry, m.Name()
		}
	}
	return nil, ""
}

type exactPathMatcher struct{}

func (exactPathMatcher) Name() string { return "exact-path" }

func (exactPathMatcher) Match(sourcePath string, entries []*Entry) *Entry {
	normalized := queue.NormalizeSourcePath(sourcePath)
	for _, entry := range entries {
		if entry.Path == normalized {
			return entry
		}
	}
	return nil
}

var seasonEpisodePattern = regexp.MustCompile(`(?i)s(\d{1,2})\s*e(\d{1,3})`)

// ParseSeasonEpisode extracts SxxEyy style numbering from a filename.
func ParseSeasonEpisode(name string) (season, episode int, ok bool) {
	m := seasonEpisodePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	season, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	episode, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return season, episode, true
}

type seasonEpisodeMatcher struct{}

func (seasonEpisodeMatcher) Name() string { return "season-episode" }

func (seasonEpisodeMatcher) Match(sourcePath string, entries []*Entry) *Entry {
	season, episode, ok := ParseSeasonEpisode(filepath.Base(sourcePath))
	if !ok {
		return nil
	}
	for _, entry := range entries {
		if entry.Season == nil || entry.Episode == nil {
			continue
		}
		if *entry.Season == season && *entry.Episode == episode {
			return entry
		}
	}
	return nil
}

type filenameSubstringMatcher struct{}

func (filenameSubstringMatcher) Name() string { return "filename-substring" }

func (filenameSubstringMatcher) Match(sourcePath string, entries []*Entry) *Entry {
	stem := fileStem(sourcePath)
	if stem == "" {
		return nil
	}
	for _, entry := range entries {
		entryStem := fileStem(entry.Path)
		if entryStem == "" {
			continue
		}
		if strings.Contains(stem, entryStem) || strings.Contains(entryStem, stem) {
			return entry
		}
	}
	return nil
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

package main

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
)

// DifficultySource serves candidate page URLs for guessing mode, one list
// per difficulty tier, loaded from <dir>/<tier>.txt with one URL per line.
type DifficultySource struct {
	dir    string
	domain string
}

func newDifficultySource(cfg *Config) *DifficultySource {
	return &DifficultySource{
		dir:    cfg.gamedata,
		domain: cfg.wikiDomain,
	}
}

// Load returns every non-blank line of the tier's list. A missing file and
// an empty file fail distinctly so callers can report which one it was.
func (d *DifficultySource) Load(tier difficulty) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(d.dir, string(tier)+".txt"))
	if os.IsNotExist(err) {
		return nil, errDifficultyMissing
	}
	if err != nil {
		return nil, err
	}

	var urls []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			urls = append(urls, line)
		}
	}

	if len(urls) == 0 {
		return nil, errDifficultyEmpty
	}

	return urls, nil
}

// Random draws one validated URL from the tier's list.
func (d *DifficultySource) Random(tier difficulty) (string, error) {
	urls, err := d.Load(tier)
	if err != nil {
		return "", err
	}

	picked := urls[rand.IntN(len(urls))]
	if !isSafeURL(d.domain, picked) {
		return "", errInvalidURL
	}

	return picked, nil
}

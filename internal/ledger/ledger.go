// Package ledger records which attachment filenames have already been
// downloaded, one name per line in a plain text file.
//
// The file is append-only. Append consults the names already on disk and
// never writes a name twice, so repeated and forced runs do not grow it.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Set is a collection of filenames.
type Set map[string]struct{}

// Has reports whether name is in the set.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Ledger is the persisted record. It is safe for concurrent use within one
// process; concurrent processes sharing a file are not supported.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// New returns a ledger backed by path. The file is created lazily.
func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the backing file path.
func (l *Ledger) Path() string { return l.path }

// Load returns the names recorded by earlier runs. With force set it returns
// an empty set without touching the file. A missing file is an empty set.
func (l *Ledger) Load(force bool) (Set, error) {
	if force {
		log.Debug().Str("path", l.path).Msg("Force enabled, ignoring ledger")
		return Set{}, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

// Append records names. Names already in the file, and repeats within names,
// are skipped. Existing lines are never rewritten.
func (l *Ledger) Append(names []string) error {
	if len(names) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	known, err := l.read()
	if err != nil {
		return err
	}

	var b strings.Builder
	added := 0
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || known.Has(n) {
			continue
		}
		known[n] = struct{}{}
		b.WriteString(n)
		b.WriteByte('\n')
		added++
	}
	if added == 0 {
		return nil
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ledger: create dir: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ledger: open %s: %w", l.path, err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return fmt.Errorf("ledger: append %s: %w", l.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ledger: close %s: %w", l.path, err)
	}

	log.Debug().Str("path", l.path).Int("added", added).Int("skipped", len(names)-added).Msg("Ledger updated")
	return nil
}

func (l *Ledger) read() (Set, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Set{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", l.path, err)
	}
	defer f.Close()

	set := Set{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			set[line] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ledger: read %s: %w", l.path, err)
	}
	return set, nil
}

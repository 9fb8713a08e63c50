package worklog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
)

// Disposal selects what Close does with a fully drained log file.
type Disposal int

const (
	// DisposalDelete removes the file.
	DisposalDelete Disposal = iota
	// DisposalArchive renames the file to "<path>.<unix-millis>".
	DisposalArchive
	// DisposalNone leaves the file in place.
	DisposalNone
)

func (d Disposal) String() string {
	switch d {
	case DisposalDelete:
		return "delete"
	case DisposalArchive:
		return "archive"
	case DisposalNone:
		return "none"
	default:
		return fmt.Sprintf("disposal(%d)", int(d))
	}
}

// ParseDisposal maps "delete", "archive" and "none" to a Disposal.
func ParseDisposal(s string) (Disposal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "delete":
		return DisposalDelete, nil
	case "archive":
		return DisposalArchive, nil
	case "none", "no_disposal":
		return DisposalNone, nil
	default:
		return 0, fmt.Errorf("worklog: unknown disposal %q", s)
	}
}

// ExitCleanup collects files that must be removed when the process exits.
// The owner calls Run during its shutdown sequence.
type ExitCleanup struct {
	mu    sync.Mutex
	paths []string
}

// Add registers path for removal.
func (c *ExitCleanup) Add(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.paths {
		if p == path {
			return
		}
	}
	c.paths = append(c.paths, path)
}

// Paths returns the registered paths.
func (c *ExitCleanup) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

// Run removes every registered path. Missing files are not an error.
func (c *ExitCleanup) Run() error {
	c.mu.Lock()
	paths := c.paths
	c.paths = nil
	c.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("worklog: exit cleanup %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

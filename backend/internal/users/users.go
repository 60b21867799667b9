// Package users maps numeric user ids to login names.
package users

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"cinefm/backend/internal/types"
)

// Table is loaded once at startup and only read afterwards.
type Table struct {
	names map[uint32]string
}

// NewTable builds a table from an explicit mapping, mostly for tests.
func NewTable(m map[uint32]string) *Table {
	names := make(map[uint32]string, len(m))
	for k, v := range m {
		names[k] = v
	}
	return &Table{names: names}
}

// Parse reads passwd-formatted lines (name:pw:uid:...). Malformed lines are skipped.
func Parse(r io.Reader) (*Table, error) {
	t := &Table{names: make(map[uint32]string)}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, ":", 4)
		if len(fields) < 3 {
			continue
		}
		uid, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			continue
		}
		t.names[uint32(uid)] = fields[0]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read passwd: %w", err)
	}
	return t, nil
}

// Load parses the passwd file at path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Lookup returns the name for uid, if known.
func (t *Table) Lookup(uid uint32) (string, bool) {
	if t == nil {
		return "", false
	}
	name, ok := t.names[uid]
	return name, ok
}

// Name returns the name for uid or the placeholder.
func (t *Table) Name(uid uint32) string {
	if name, ok := t.Lookup(uid); ok {
		return name
	}
	return types.Placeholder
}

// Len returns the number of known users.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

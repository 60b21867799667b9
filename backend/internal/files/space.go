package files

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// NoFree is reported when free space cannot be determined.
const NoFree = "-.--"

// Free returns the space available on the filesystem holding dir, in GB with two decimals.
func Free(dir string) string {
	avail, err := availableBytes(dir)
	if err != nil {
		return NoFree
	}
	megabytes := avail / (1 << 20)
	return fmt.Sprintf("%.2f", float64(megabytes)/1024)
}

// DiskUsage runs `du -sm path` and returns the whole megabytes it reports, or "0".
func DiskUsage(ctx context.Context, duPath, path string) string {
	if duPath == "" {
		duPath = "du"
	}
	out, err := exec.CommandContext(ctx, duPath, "-sm", path).Output()
	if err != nil {
		return "0"
	}
	field, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\t")
	field = strings.TrimSpace(field)
	if _, err := strconv.ParseUint(field, 10, 64); err != nil {
		return "0"
	}
	return field
}

package files

import (
	"fmt"
	"os"

	"cinefm/backend/internal/types"
)

// FormatSize renders a byte count with one decimal. Only files get a size.
func FormatSize(size int64, kind types.EntryKind) string {
	if kind != types.KindFile {
		return types.Placeholder
	}

	var divide float64
	var unit string
	switch {
	case size >= 1000000000:
		divide, unit = 1e9, "GB"
	case size >= 1000000:
		divide, unit = 1e6, "MB"
	case size >= 1000:
		divide, unit = 1e3, "KB"
	default:
		divide, unit = 1, "B"
	}
	return fmt.Sprintf("%.1f %s", float64(size)/divide, unit)
}

// permBits are checked owner first, in POSIX order.
var permBits = [9]os.FileMode{0o400, 0o200, 0o100, 0o040, 0o020, 0o010, 0o004, 0o002, 0o001}

const permLetters = "rwxrwxrwx"

// PermString renders the 9-character rwx triads of mode.
func PermString(mode os.FileMode) string {
	out := make([]byte, len(permBits))
	for i, bit := range permBits {
		if mode&bit != 0 {
			out[i] = permLetters[i]
		} else {
			out[i] = '-'
		}
	}
	return string(out)
}

package transfer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"cinefm/backend/internal/types"
)

// LineParser turns one raw line of tool output into a progress event.
// ok is false for lines that carry no usable progress; they are skipped.
type LineParser interface {
	Parse(line string) (p types.TransferProgress, ok bool)
}

// UnknownETA is reported when the tool does not expose a time estimate.
const UnknownETA = "--:--:--"

// DefaultRemoteSpeed is reported before the fetch tool prints a speed.
const DefaultRemoteSpeed = "00.0kB/s"

var (
	rsyncSpeed = regexp.MustCompile(`^[0-9][0-9.,]*[kKMGT]?B/s$`)
	rsyncETA   = regexp.MustCompile(`^[0-9]+:[0-9]{2}:[0-9]{2}$`)
)

// RsyncParser reads `rsync --info=progress2` lines:
//
//	1,234,567  45%   12.34MB/s    0:00:10
//
// It remembers the transferred size once the line reaches 100%.
type RsyncParser struct {
	Name   string
	sizeMB string
}

func (p *RsyncParser) Parse(line string) (types.TransferProgress, bool) {
	tokens := strings.Fields(line)
	if len(tokens) < 2 {
		return types.TransferProgress{}, false
	}
	percent, ok := strictPercent(tokens[1])
	if !ok {
		return types.TransferProgress{}, false
	}
	if percent == 100 {
		if n, err := strconv.ParseInt(strings.ReplaceAll(tokens[0], ",", ""), 10, 64); err == nil {
			p.sizeMB = fmt.Sprintf("%.2f", float64(n)/1048576)
		}
	}
	if len(tokens) < 4 || !rsyncSpeed.MatchString(tokens[2]) || !rsyncETA.MatchString(tokens[3]) {
		return types.TransferProgress{}, false
	}
	return types.TransferProgress{
		Name:    p.Name,
		Percent: percent,
		Speed:   tokens[2],
		ETA:     tokens[3],
	}, true
}

// SizeMB returns the size captured at 100%, or "0.00" if none was seen.
func (p *RsyncParser) SizeMB() string {
	if p.sizeMB == "" {
		return "0.00"
	}
	return p.sizeMB
}

// WgetParser reads `wget --progress=bar:force:noscroll --show-progress` lines:
//
//	movie.mkv   45%[=======>        ]  1.20G  11.2MB/s    eta 2m 10s
type WgetParser struct {
	Name string
}

func (p *WgetParser) Parse(line string) (types.TransferProgress, bool) {
	tokens := strings.Fields(line)
	if len(tokens) < 2 {
		return types.TransferProgress{}, false
	}
	percent, ok := leadingPercent(tokens[1])
	if !ok {
		return types.TransferProgress{}, false
	}

	speed := DefaultRemoteSpeed
	for _, t := range tokens[2:] {
		if strings.Contains(t, "B/s") && t != "--.-KB/s" {
			speed = lowerUnit(t)
		}
	}
	return types.TransferProgress{
		Name:    p.Name,
		Percent: percent,
		Speed:   speed,
		ETA:     UnknownETA,
		File:    tokens[0],
	}, true
}

// strictPercent parses "NN%".
func strictPercent(tok string) (int, bool) {
	digits, found := strings.CutSuffix(tok, "%")
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || n > 100 {
		return 0, false
	}
	return n, true
}

// leadingPercent parses "NN%" followed by anything, e.g. "45%[===>".
func leadingPercent(tok string) (int, bool) {
	i := 0
	for i < len(tok) && tok[i] >= '0' && tok[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(tok) || tok[i] != '%' {
		return 0, false
	}
	return strictPercent(tok[:i+1])
}

// lowerUnit turns "11.2MB/s" into "11.2mB/s".
func lowerUnit(speed string) string {
	i := strings.Index(speed, "B/s")
	if i <= 0 {
		return speed
	}
	switch speed[i-1] {
	case 'K', 'M', 'G':
		return speed[:i-1] + strings.ToLower(speed[i-1:i]) + speed[i:]
	}
	return speed
}

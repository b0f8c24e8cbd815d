// ABOUTME: Replay source that streams recorded vsync timestamps from a file
// ABOUTME: One nanosecond timestamp per line, # comments and blanks skipped
package feed

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Replay streams timestamps parsed from a recorded capture.
type Replay struct {
	timestamps []int64
	pos        int
}

// NewReplay parses a timestamp stream from r. Each line holds one
// nanosecond timestamp; blank lines and lines starting with # are skipped.
func NewReplay(r io.Reader) (*Replay, error) {
	var timestamps []int64

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		ts, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		timestamps = append(timestamps, ts)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading capture: %w", err)
	}

	return &Replay{timestamps: timestamps}, nil
}

// LoadReplay reads a recorded capture from a file.
func LoadReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture: %w", err)
	}
	defer f.Close()

	replay, err := NewReplay(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return replay, nil
}

// Next implements Source. It returns false once the capture is exhausted.
func (r *Replay) Next() (int64, bool) {
	if r.pos >= len(r.timestamps) {
		return 0, false
	}
	ts := r.timestamps[r.pos]
	r.pos++
	return ts, true
}

// Len returns how many timestamps the capture holds.
func (r *Replay) Len() int {
	return len(r.timestamps)
}

// Rewind restarts the capture from the beginning.
func (r *Replay) Rewind() {
	r.pos = 0
}

// Package nulllog persists the permutation null distribution as an
// append-only text log, one float per line. The file survives process
// restarts; its line count is the number of completed permutations.
package nulllog

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"govlsm/internal/errors"
	"govlsm/ports"
)

// FileLog implements ports.NullLogPort on a plain text file. Appends are
// open-write-sync-close so each completed iteration is durable before the
// next one starts. Only one coordinating goroutine writes at a time; the
// file is never rewritten.
type FileLog struct {
	path string
}

// NewFileLog creates a file-backed null log at path. The file is created
// lazily on first append; a missing file reads as zero samples.
func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

var _ ports.NullLogPort = (*FileLog)(nil)

// Append durably records one null sample.
func (l *FileLog) Append(value float64) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.IOError("failed to open permutation log for append", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%g\n", value); err != nil {
		return errors.IOError("failed to append to permutation log", err)
	}
	if err := f.Sync(); err != nil {
		return errors.IOError("failed to sync permutation log", err)
	}
	return nil
}

// ReadAll returns every recorded sample in append order. A line that does
// not parse as a float fails the whole read: silently restarting from a
// damaged log would bias the null distribution.
func (l *FileLog) ReadAll() ([]float64, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.IOError("failed to open permutation log", err)
	}
	defer f.Close()

	var samples []float64
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, errors.NullLogCorrupt(fmt.Sprintf(
				"permutation log %s line %d is not numeric: %q", l.path, line, text))
		}
		samples = append(samples, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.IOError("failed to read permutation log", err)
	}
	return samples, nil
}

// Count returns the number of completed permutations recorded so far.
func (l *FileLog) Count() (int, error) {
	samples, err := l.ReadAll()
	if err != nil {
		return 0, err
	}
	return len(samples), nil
}

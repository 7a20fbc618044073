// Package logging configures the global zerolog logger: console or JSON on
// stderr, plus an optional per-run log file with retention.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const filePrefix = "kasabot_"

// Options mirrors the LOG_* settings.
type Options struct {
	Level    string
	Format   string // console | json
	Dir      string
	MaxFiles int
}

// Setup installs the global logger. The returned closer flushes the log file
// (a no-op when Dir is empty).
func Setup(opts Options, now time.Time) (io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if opts.Format != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	closer := io.Closer(nopCloser{})
	if opts.Dir != "" {
		f, err := openRunFile(opts.Dir, opts.MaxFiles, now)
		if err != nil {
			return nil, err
		}
		out = zerolog.MultiLevelWriter(out, f)
		closer = f
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closer, nil
}

func openRunFile(dir string, maxFiles int, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create %s: %w", dir, err)
	}
	if maxFiles > 0 {
		// keep maxFiles-1 old files so the new one brings the total to maxFiles
		if err := Prune(dir, maxFiles-1); err != nil {
			return nil, err
		}
	}
	name := filepath.Join(dir, filePrefix+now.Format("20060102_150405")+".log")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", name, err)
	}
	return f, nil
}

// Prune removes the oldest run log files in dir until at most keep remain.
// File names embed the start time, so lexical order is chronological.
func Prune(dir string, keep int) error {
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*.log"))
	if err != nil {
		return fmt.Errorf("logging: list %s: %w", dir, err)
	}
	if keep < 0 {
		keep = 0
	}
	if len(matches) <= keep {
		return nil
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-keep] {
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("logging: remove %s: %w", old, err)
		}
	}
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

package report

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalsfoundry/wsn-simulator/model"
)

// Series file names written by SeriesWriter.
const (
	AliveFile    = "alive.txt"
	IsolatedFile = "isolated.txt"
	DeadFile     = "dead.txt"
	SleepingFile = "sleeping.txt"
)

type seriesFile struct {
	f     *os.File
	w     *bufio.Writer
	count func(model.RoundStats) int
}

// SeriesWriter appends one "round,count" line per round to four files,
// one per population count.
type SeriesWriter struct {
	files []seriesFile
}

// NewSeriesWriter creates dir if needed and truncates the series files.
func NewSeriesWriter(dir string) (*SeriesWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	specs := []struct {
		name  string
		count func(model.RoundStats) int
	}{
		{AliveFile, func(s model.RoundStats) int { return s.Alive }},
		{IsolatedFile, func(s model.RoundStats) int { return s.Isolated }},
		{DeadFile, func(s model.RoundStats) int { return s.Dead }},
		{SleepingFile, func(s model.RoundStats) int { return s.Sleeping }},
	}
	sw := &SeriesWriter{}
	for _, spec := range specs {
		f, err := os.Create(filepath.Join(dir, spec.name))
		if err != nil {
			_ = sw.Close()
			return nil, fmt.Errorf("create %s: %w", spec.name, err)
		}
		sw.files = append(sw.files, seriesFile{f: f, w: bufio.NewWriter(f), count: spec.count})
	}
	return sw, nil
}

// WriteRound appends the round's counts and flushes.
func (s *SeriesWriter) WriteRound(_ context.Context, stats model.RoundStats, _ []model.NodeSnapshot) error {
	for _, sf := range s.files {
		if _, err := fmt.Fprintf(sf.w, "%d,%d\n", stats.Round, sf.count(stats)); err != nil {
			return fmt.Errorf("write %s: %w", filepath.Base(sf.f.Name()), err)
		}
		if err := sf.w.Flush(); err != nil {
			return fmt.Errorf("flush %s: %w", filepath.Base(sf.f.Name()), err)
		}
	}
	return nil
}

func (s *SeriesWriter) Close() error {
	var errs []error
	for _, sf := range s.files {
		if err := sf.w.Flush(); err != nil {
			errs = append(errs, err)
		}
		if err := sf.f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.files = nil
	return errors.Join(errs...)
}

package janitor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor periodically deletes temp files no live draft refers to
type Janitor struct {
	cron     *cron.Cron
	dir      string
	maxAge   time.Duration
	schedule string
	keep     func() map[string]struct{}
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a janitor for dir. keep returns the paths still owned by drafts.
func New(dir string, maxAge time.Duration, schedule string, keep func() map[string]struct{}, logger *zap.Logger) *Janitor {
	return &Janitor{
		cron:     cron.New(),
		dir:      dir,
		maxAge:   maxAge,
		schedule: schedule,
		keep:     keep,
		now:      time.Now,
		logger:   logger.Named("janitor"),
	}
}

// Start sweeps once and then on schedule
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.run); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", j.schedule, err)
	}
	j.run()
	j.cron.Start()
	j.logger.Info("Janitor started", zap.String("dir", j.dir), zap.String("schedule", j.schedule), zap.Duration("max_age", j.maxAge))
	return nil
}

// Stop waits for a running sweep and stops the schedule
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("Janitor stopped")
}

func (j *Janitor) run() {
	removed, err := j.Sweep()
	if err != nil {
		j.logger.Error("Sweep failed", zap.Error(err))
	}
	if removed > 0 {
		j.logger.Info("Removed orphaned temp files", zap.Int("count", removed))
	}
}

// Sweep deletes regular files in the directory older than the max age,
// skipping the ones still owned by drafts
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read %s: %w", j.dir, err)
	}

	keep := map[string]struct{}{}
	if j.keep != nil {
		keep = j.keep()
	}
	cutoff := j.now().Add(-j.maxAge)

	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(j.dir, entry.Name())
		if _, live := keep[path]; live {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

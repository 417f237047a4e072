package service

import (
	"context"
	"errors"
	"fmt"

	"wavely/internal/middleware"
	"wavely/internal/repository"
	"wavely/internal/wavedoc"
)

const repairMaxAttempts = 3

// RepairReport summarizes a counter repair pass.
type RepairReport struct {
	Scanned  int    `json:"scanned"`
	Repaired int    `json:"repaired"`
	Failed   []uint `json:"failed,omitempty"`
}

// RepairCounters re-derives comments, likes and averageRating for every wave
// and writes back the documents whose stored counters drifted. With dryRun
// set nothing is written.
func RepairCounters(ctx context.Context, waves repository.WaveRepository, dryRun bool) (*RepairReport, error) {
	ids, err := waves.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list waves: %w", err)
	}

	report := &RepairReport{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		repaired, err := repairWave(ctx, waves, id, dryRun)
		if err != nil {
			middleware.Logger.WarnContext(ctx, "counter repair failed", "wave_id", id, "error", err)
			report.Failed = append(report.Failed, id)
			continue
		}
		if repaired {
			report.Repaired++
		}
	}
	return report, nil
}

func repairWave(ctx context.Context, waves repository.WaveRepository, id uint, dryRun bool) (bool, error) {
	for attempt := 0; attempt < repairMaxAttempts; attempt++ {
		w, err := waves.GetByID(ctx, id)
		if err != nil {
			return false, err
		}
		fixed := w.Clone()
		wavedoc.Reconcile(fixed)
		if fixed.Comments == w.Comments && fixed.Likes == w.Likes && fixed.AverageRating == w.AverageRating {
			return false, nil
		}
		if dryRun {
			return true, nil
		}

		err = waves.ReplaceDocument(ctx, fixed, w.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		return err == nil, err
	}
	return false, repository.ErrVersionConflict
}

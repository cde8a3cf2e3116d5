package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nao1215/threadcap/internal/crawler"
	"github.com/nao1215/threadcap/internal/model"
)

// ErrNothingToLoad is returned when a job has neither an existing file nor a root URL.
var ErrNothingToLoad = errors.New("no snapshot file and no root url")

// Updater is the part of crawler.Updater used by the steps.
type Updater interface {
	Init(ctx context.Context, rootURL string, p model.Protocol) (*model.Threadcap, error)
	Update(ctx context.Context, tc *model.Threadcap, opts ...crawler.UpdateOption) (*crawler.Stats, error)
}

// SnapshotStore records snapshot history.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, tc *model.Threadcap, runID string, updateTime model.Instant) (string, error)
}

// LoadStep reads the job's snapshot file when it exists.
// A missing file is fine when the job has a root URL to initialize from.
type LoadStep struct{}

// Name returns the step name.
func (LoadStep) Name() string { return "load" }

// Do executes the step.
func (LoadStep) Do(_ context.Context, job *Job) error {
	if job.Threadcap != nil {
		return nil
	}
	if job.Path != "" {
		tc, err := model.ReadFile(job.Path)
		if err == nil {
			job.Threadcap = tc
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if job.RootURL == "" {
		return fmt.Errorf("%w: %s", ErrNothingToLoad, job.Name())
	}
	return nil
}

// InitStep initializes a snapshot from the job's root URL when none was loaded.
type InitStep struct {
	Updater  Updater
	Protocol model.Protocol
}

// Name returns the step name.
func (s *InitStep) Name() string { return "init" }

// Do executes the step.
func (s *InitStep) Do(ctx context.Context, job *Job) error {
	if job.Threadcap != nil {
		return nil
	}
	if job.RootURL == "" {
		return fmt.Errorf("%w: %s", ErrNothingToLoad, job.Name())
	}
	tc, err := s.Updater.Init(ctx, job.RootURL, s.Protocol)
	if err != nil {
		return err
	}
	job.Threadcap = tc
	return nil
}

// UpdateStep runs one update pass.
//
// Design decision: The step takes its own context so that an interrupt
// stops the traversal between nodes while the rest of the pipeline still
// runs and persists the partial result.
type UpdateStep struct {
	Updater Updater
	Options []crawler.UpdateOption

	// Interrupt, when set, replaces the pipeline context for the update.
	Interrupt context.Context
}

// Name returns the step name.
func (s *UpdateStep) Name() string { return "update" }

// Do executes the step.
func (s *UpdateStep) Do(ctx context.Context, job *Job) error {
	if s.Interrupt != nil {
		ctx = s.Interrupt
	}
	stats, err := s.Updater.Update(ctx, job.Threadcap, s.Options...)
	if err != nil {
		return err
	}
	job.Stats = stats
	return nil
}

// SaveStep writes the snapshot back to the job's file.
type SaveStep struct{}

// Name returns the step name.
func (SaveStep) Name() string { return "save" }

// Do executes the step.
func (SaveStep) Do(_ context.Context, job *Job) error {
	if job.Path == "" || job.Threadcap == nil {
		return nil
	}
	return model.WriteFile(job.Path, job.Threadcap)
}

// HistoryStep records the snapshot in the history database.
type HistoryStep struct {
	Store SnapshotStore
}

// Name returns the step name.
func (s *HistoryStep) Name() string { return "history" }

// Do executes the step.
func (s *HistoryStep) Do(ctx context.Context, job *Job) error {
	if job.Threadcap == nil {
		return nil
	}
	var runID string
	var updateTime model.Instant
	if job.Stats != nil {
		runID = job.Stats.RunID
		updateTime = job.Stats.UpdateTime
	}
	id, err := s.Store.SaveSnapshot(ctx, job.Threadcap, runID, updateTime)
	if err != nil {
		return err
	}
	job.SnapshotID = id
	return nil
}

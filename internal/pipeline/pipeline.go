package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/threadcap/internal/crawler"
	"github.com/nao1215/threadcap/internal/model"
)

// Job is the unit of work flowing through a pipeline.
type Job struct {
	// Path is the snapshot file. Empty means the snapshot is not persisted
	// to a file.
	Path string

	// RootURL is used to initialize a snapshot when none can be loaded.
	RootURL string

	// Threadcap is the snapshot being worked on.
	Threadcap *model.Threadcap

	// Stats is the result of the update step.
	Stats *crawler.Stats

	// SnapshotID is the history row written by the history step.
	SnapshotID string

	// Err is the error of the first failed step.
	Err error

	// Performed lists the steps that ran, in order.
	Performed []string
}

// Name identifies the job in logs.
func (j *Job) Name() string {
	if j.Path != "" {
		return j.Path
	}
	return j.RootURL
}

// Step defines the interface that all pipeline steps must implement.
//
// Design decision: We use an interface rather than function types because:
// 1. It allows steps to carry configuration state
// 2. It provides a Name() method for logging and debugging
type Step interface {
	// Do executes the step on job.
	Do(ctx context.Context, job *Job) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails.
//
// Design decision: The default is to stop, because a failed load or
// initialization leaves nothing for later steps to work on.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence.
//
// Design decision: We check ctx.Done() before each step rather than
// during, because steps handle their own cancellation. In particular the
// save step must still run after an update was interrupted, so callers
// that want partial progress persisted pass a context that outlives the
// interrupt to Execute and the interrupt itself to the update step.
func (p *Pipeline) Execute(ctx context.Context, job *Job) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"job", job.Name(),
				"reason", ctx.Err(),
			)
			if job.Err == nil {
				job.Err = ctx.Err()
			}
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"job", job.Name(),
		)

		if err := step.Do(ctx, job); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"job", job.Name(),
				"error", err,
			)
			if job.Err == nil {
				job.Err = err
			}
			if !p.continueOnError {
				return err
			}
		}

		job.Performed = append(job.Performed, step.Name())
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}

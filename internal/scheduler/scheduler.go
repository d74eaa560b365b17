// Package scheduler submits fixed instructions to the agent on cron
// schedules, e.g. "add today's writing objective" every weekday morning.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"memoire/internal/agent"
	"memoire/internal/domain"
)

// Job is a named instruction submitted to the agent on every tick of CronExpr.
type Job struct {
	Name        string // unique
	CronExpr    string // standard 5-field expression or descriptor ("@daily")
	Instruction string
}

// Submitter runs one instruction. *agent.Agent satisfies it.
type Submitter interface {
	ProcessUserRequest(ctx context.Context, req domain.AgentRequest) domain.AgentResponse
}

// CronEngine abstracts the cron scheduler for testability.
// The real implementation wraps robfig/cron/v3.
type CronEngine interface {
	AddFunc(spec string, cmd func()) error
	Start()
	Stop()
}

// Option is a functional option for configuring a Scheduler.
type Option func(*Scheduler)

// WithLogger sets a structured logger for the Scheduler. If l is nil it is
// ignored and the default slog logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRunTimeout bounds each submitted instruction. Zero means no bound.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.runTimeout = d
		}
	}
}

// Sentinel errors for validation.
var (
	ErrEmptyJobName     = errors.New("scheduler: job name must not be empty")
	ErrEmptyCron        = errors.New("scheduler: cron expression must not be empty")
	ErrEmptyInstruction = errors.New("scheduler: instruction must not be empty")
	ErrDuplicateJob     = errors.New("scheduler: job with this name already exists")
	ErrJobNotFound      = errors.New("scheduler: job not found")
)

// Scheduler owns the cron jobs. Each tick submits the job's instruction to
// the agent and logs the response; a tick never fails the scheduler.
type Scheduler struct {
	engine     CronEngine
	agent      Submitter
	logger     *slog.Logger
	runTimeout time.Duration
	mu         sync.RWMutex
	jobs       map[string]Job
}

// NewScheduler creates a new Scheduler. Both engine and sub must not be nil.
func NewScheduler(engine CronEngine, sub Submitter, opts ...Option) *Scheduler {
	if engine == nil {
		panic("scheduler: engine must not be nil")
	}
	if sub == nil {
		panic("scheduler: agent must not be nil")
	}
	s := &Scheduler{
		engine: engine,
		agent:  sub,
		jobs:   make(map[string]Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// log returns the Scheduler's logger, falling back to the default slog logger.
func (s *Scheduler) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// AddSchedules registers every configured schedule. A schedule without a
// name is named after its position. Registration stops at the first error.
func (s *Scheduler) AddSchedules(schedules []domain.ScheduleConfig) error {
	for i, sc := range schedules {
		name := sc.Name
		if name == "" {
			name = fmt.Sprintf("schedule-%d", i+1)
		}
		if err := s.AddJob(Job{Name: name, CronExpr: sc.Cron, Instruction: sc.Instruction}); err != nil {
			return err
		}
	}
	return nil
}

// AddJob registers a new scheduled job. Returns an error if the job fails
// validation or if a job with the same name already exists.
func (s *Scheduler) AddJob(job Job) error {
	job.CronExpr = strings.TrimSpace(job.CronExpr)
	switch {
	case job.Name == "":
		return ErrEmptyJobName
	case job.CronExpr == "":
		return ErrEmptyCron
	case strings.TrimSpace(job.Instruction) == "":
		return ErrEmptyInstruction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}

	captured := job
	if err := s.engine.AddFunc(job.CronExpr, func() { s.run(captured) }); err != nil {
		return fmt.Errorf("scheduler: invalid cron expression for %q: %w", job.Name, err)
	}

	s.jobs[job.Name] = job
	s.log().Info("job registered", "job", job.Name, "cron_expr", job.CronExpr)
	return nil
}

// run submits one tick of job to the agent.
func (s *Scheduler) run(job Job) domain.AgentResponse {
	ctx := context.Background()
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}
	s.log().Info("job fired", "job", job.Name)
	resp := s.agent.ProcessUserRequest(ctx, domain.AgentRequest{UserRequest: job.Instruction})

	_, failed := agent.Count(resp.ActionsTaken)
	level := slog.LevelInfo
	if failed > 0 || resp.Degraded {
		level = slog.LevelWarn
	}
	s.log().Log(ctx, level, "job completed",
		"job", job.Name,
		"actions", len(resp.ActionsTaken),
		"failed", failed,
		"degraded", resp.Degraded,
		"response", resp.ResponseMessage,
	)
	return resp
}

// RunNow submits the instruction of the named job immediately, outside its
// schedule, and returns the agent's response.
func (s *Scheduler) RunNow(name string) (domain.AgentResponse, error) {
	job, ok := s.GetJob(name)
	if !ok {
		return domain.AgentResponse{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.run(job), nil
}

// Start begins the cron scheduler.
func (s *Scheduler) Start() {
	s.engine.Start()
}

// Stop halts the cron scheduler.
func (s *Scheduler) Stop() {
	s.engine.Stop()
}

// ListJobs returns a copy of all registered jobs sorted by name. The returned
// slice is never nil (empty slice when no jobs are registered).
func (s *Scheduler) ListJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

// GetJob returns the job with the given name, or false if not found.
func (s *Scheduler) GetJob(name string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[name]
	return job, ok
}

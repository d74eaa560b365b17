package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// RobfigCronEngine adapts robfig/cron/v3 to the CronEngine interface.
type RobfigCronEngine struct {
	c *cron.Cron
}

// NewRobfigCronEngine creates a new cron engine using robfig/cron/v3.
// Overlapping ticks of the same job are skipped rather than queued.
func NewRobfigCronEngine() *RobfigCronEngine {
	return &RobfigCronEngine{
		c: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// ValidateSpec reports whether spec is a standard 5-field cron expression
// or a descriptor such as "@daily".
func ValidateSpec(spec string) error {
	_, err := parseSpec(spec)
	return err
}

// NextRun returns the first activation of spec strictly after from.
func NextRun(spec string, from time.Time) (time.Time, error) {
	sched, err := parseSpec(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

func parseSpec(spec string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %q: %w", spec, err)
	}
	return sched, nil
}

// AddFunc registers cmd on spec.
func (r *RobfigCronEngine) AddFunc(spec string, cmd func()) error {
	_, err := r.c.AddFunc(spec, cmd)
	return err
}

// Start begins the cron scheduler in its own goroutine.
func (r *RobfigCronEngine) Start() {
	r.c.Start()
}

// Stop halts the cron scheduler and waits for running jobs to finish.
func (r *RobfigCronEngine) Stop() {
	<-r.c.Stop().Done()
}

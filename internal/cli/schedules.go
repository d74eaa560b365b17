package cli

import (
	"fmt"
	"io"
	"time"

	"memoire/internal/scheduler"
)

// NewScheduler registers every configured schedule on a cron engine that
// submits to rt.Agent. The scheduler is not started.
func NewScheduler(rt *Runtime, runTimeout time.Duration) (*scheduler.Scheduler, error) {
	s := scheduler.NewScheduler(scheduler.NewRobfigCronEngine(), rt.Agent,
		scheduler.WithLogger(rt.Logger),
		scheduler.WithRunTimeout(runTimeout),
	)
	if err := s.AddSchedules(rt.Config.Schedules); err != nil {
		return nil, err
	}
	return s, nil
}

// RunSchedulesList prints the configured schedules sorted by name with their
// next activation after now.
func RunSchedulesList(rt *Runtime, now time.Time, out io.Writer) error {
	s, err := NewScheduler(rt, 0)
	if err != nil {
		return err
	}
	jobs := s.ListJobs()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "no schedules configured")
		return nil
	}
	tw := newTable(out)
	for _, j := range jobs {
		next, err := scheduler.NextRun(j.CronExpr, now)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", j.Name, j.CronExpr, next.Local().Format("2006-01-02 15:04"), j.Instruction)
	}
	return tw.Flush()
}

// RunSchedulesRun submits the named schedule's instruction now and prints
// the response the way RunAsk does.
func RunSchedulesRun(rt *Runtime, name string, runTimeout time.Duration, asJSON bool, out io.Writer) error {
	s, err := NewScheduler(rt, runTimeout)
	if err != nil {
		return err
	}
	resp, err := s.RunNow(name)
	if err != nil {
		return err
	}
	return printResponse(out, resp, asJSON)
}

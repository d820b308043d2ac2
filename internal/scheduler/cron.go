package scheduler

import (
	"fmt"
	"time"

	"gopkg.in/robfig/cron.v2"
)

// Scheduler runs recurring jobs.
type Scheduler interface {
	AddFunc(spec string, cmd func()) (int, error)
	RemoveFunc(id int)
}

// Cron is a Scheduler backed by robfig/cron.
type Cron struct {
	cron *cron.Cron
}

// NewCron creates and starts a scheduler.
func NewCron() *Cron {
	c := &Cron{cron: cron.New()}
	c.cron.Start()
	return c
}

// AddFunc schedules a new job.
func (c *Cron) AddFunc(spec string, cmd func()) (int, error) {
	id, err := c.cron.AddFunc(spec, cmd)
	return int(id), err
}

// RemoveFunc removes a scheduled job.
func (c *Cron) RemoveFunc(id int) {
	c.cron.Remove(cron.EntryID(id))
}

// Stop halts the scheduler. Running jobs are not interrupted.
func (c *Cron) Stop() {
	c.cron.Stop()
}

// Every returns a cron spec firing at a fixed interval.
func Every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

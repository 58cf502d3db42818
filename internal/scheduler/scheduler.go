// Package scheduler provides cron-based maintenance scheduling for SlotPipe.
//
// Campaign waves themselves run through the durable job runner; the cron side
// only carries the housekeeping work: requeueing stale wave jobs after a
// crash and sweeping inert campaigns past the retention window.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BTreeMap/SlotPipe/internal/store"
)

// DefaultRetention is how long an inert campaign is kept before the sweep
// deletes it and releases its contact index entries.
const DefaultRetention = 14 * 24 * time.Hour

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field cron parser (min, hour, dom, month, dow) with panic recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// Maintenance bundles the recurring housekeeping tasks over the store.
type Maintenance struct {
	store     store.Store
	retention time.Duration
}

// NewMaintenance creates the maintenance task set. A non-positive retention
// falls back to DefaultRetention.
func NewMaintenance(st store.Store, retention time.Duration) *Maintenance {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Maintenance{store: st, retention: retention}
}

// Register wires the maintenance tasks onto the scheduler: a retention sweep
// once a day and a stale-job requeue every five minutes.
func (m *Maintenance) Register(s *Scheduler) error {
	if err := s.AddJob("0 3 * * *", m.SweepExpiredCampaigns); err != nil {
		return err
	}
	return s.AddJob("*/5 * * * *", m.RequeueStaleJobs)
}

// SweepExpiredCampaigns deletes campaigns older than the retention window.
func (m *Maintenance) SweepExpiredCampaigns() {
	cutoff := time.Now().Add(-m.retention)
	n, err := m.store.DeleteCampaignsBefore(cutoff)
	if err != nil {
		slog.Error("Maintenance.SweepExpiredCampaigns failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Maintenance.SweepExpiredCampaigns: campaigns removed", "count", n, "cutoff", cutoff)
	}
}

// RequeueStaleJobs resets wave jobs whose runner died mid-execution.
func (m *Maintenance) RequeueStaleJobs() {
	staleBefore := time.Now().Add(-5 * time.Minute)
	n, err := m.store.RequeueStaleRunningJobs(staleBefore)
	if err != nil {
		slog.Error("Maintenance.RequeueStaleJobs failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Maintenance.RequeueStaleJobs: jobs requeued", "count", n)
	}
}

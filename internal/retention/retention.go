// Package retention schedules the Store's age-based garbage collection,
// using github.com/robfig/cron/v3 as its job scheduler, repurposed here
// to drive a single housekeeping task instead of a job queue.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/redditpulse/scraper/internal/logger"
	"github.com/redditpulse/scraper/internal/store"
)

// Job runs store.GC on a cron schedule.
type Job struct {
	store          *store.Store
	postDays       int
	metricDays     int
	log            logger.Interface
	cron           *cron.Cron
}

// New builds a Job that will trim posts/users older than postDays and
// metrics older than metricDays whenever it fires.
func New(st *store.Store, postDays, metricDays int, log logger.Interface) *Job {
	return &Job{
		store:      st,
		postDays:   postDays,
		metricDays: metricDays,
		log:        log,
		cron:       cron.New(),
	}
}

// Start schedules the job per spec (e.g. "@daily") and begins running it
// in the background. Call Stop to end it.
func (j *Job) Start(schedule string) error {
	_, err := j.cron.AddFunc(schedule, j.runOnce)
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight run to finish.
func (j *Job) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Job) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	now := time.Now().UTC()
	beforePosts := now.AddDate(0, 0, -j.postDays)
	beforeMetrics := now.AddDate(0, 0, -j.metricDays)

	if err := j.store.GC(ctx, beforePosts, beforeMetrics); err != nil {
		j.log.Error("retention: gc failed", "error", err)
		return
	}
	j.log.Info("retention: gc completed", "before_posts", beforePosts, "before_metrics", beforeMetrics)
}

// Package jobs runs background maintenance on a single worker fed by
// interval schedules.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"hradmin/internal/platform/metrics"
)

// RunFunc performs one run of a job and returns details for the log.
type RunFunc func(ctx context.Context) (any, error)

type Service struct {
	Logger  *slog.Logger
	Metrics *metrics.Collector

	queue     chan job
	mu        sync.Mutex
	schedules []schedule
}

type job struct {
	Type string
	Run  RunFunc
}

type schedule struct {
	job      job
	interval time.Duration
}

func New(logger *slog.Logger, collector *metrics.Collector) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Logger:  logger,
		Metrics: collector,
		queue:   make(chan job, 128),
	}
}

// Every registers run to be enqueued each interval once Start is called.
// Non-positive intervals disable the job.
func (s *Service) Every(jobType string, interval time.Duration, run RunFunc) {
	if interval <= 0 {
		s.Logger.Info("job disabled", "job_type", jobType)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules = append(s.schedules, schedule{job: job{Type: jobType, Run: run}, interval: interval})
}

// Start launches the worker and the schedulers; they stop with ctx.
func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sch := range s.schedules {
		go s.schedule(ctx, sch)
	}
}

func (s *Service) Enqueue(jobType string, run RunFunc) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		s.Logger.Warn("job queue full", "job_type", jobType)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run RunFunc) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				s.Logger.Warn("job run failed", "job_type", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	start := time.Now()
	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	s.Metrics.JobRun(j.Type, status)
	s.Logger.Info("job run",
		"job_type", j.Type,
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
		"details", details,
	)
	return details, err
}

func (s *Service) schedule(ctx context.Context, sch schedule) {
	ticker := time.NewTicker(sch.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(sch.job.Type, sch.job.Run)
		}
	}
}

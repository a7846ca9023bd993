/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/blobstore"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/cache"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	dbclient "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/client"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/queue"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/ratelimit"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/recovery"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/s3"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/utils/channel"
)

const heartbeatInterval = 30 * time.Second

var (
	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bin2nlp_jobs_processed_total",
		Help: "Jobs driven to a settled state by this worker process.",
	}, []string{"outcome"})

	leaseGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bin2nlp_active_leases",
		Help: "Jobs currently leased by this worker process.",
	})
)

// Manager runs N polling workers plus the background maintenance loops.
type Manager struct {
	db         *dbclient.Client
	queue      *queue.Queue
	supervisor *recovery.Supervisor
	cache      *cache.Cache
	blobs      *blobstore.Store
	limiter    *ratelimit.Limiter
	notifier   *Notifier
	mirror     s3.Interface

	baseId       string
	count        int
	pollInterval time.Duration

	cron   *cron.Cron
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewManager(db *dbclient.Client, q *queue.Queue, supervisor *recovery.Supervisor,
	resultCache *cache.Cache, blobs *blobstore.Store, limiter *ratelimit.Limiter, baseId string) *Manager {
	if baseId == "" {
		hostname, _ := os.Hostname()
		baseId = hostname
	}
	return &Manager{
		db:           db,
		queue:        q,
		supervisor:   supervisor,
		cache:        resultCache,
		blobs:        blobs,
		limiter:      limiter,
		notifier:     NewNotifier(),
		baseId:       baseId,
		count:        config.GetWorkerCount(),
		pollInterval: time.Duration(config.GetQueuePollIntervalSecond()) * time.Second,
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
	}
}

// Start launches the worker pool and maintenance schedules. It returns
// immediately; Stop blocks until everything drains.
func (m *Manager) Start(ctx context.Context) error {
	if config.IsS3Enable() {
		mirror, err := s3.NewClient(ctx, s3.Option{ExpireDay: config.GetS3ExpireDay()})
		if err != nil {
			return err
		}
		m.mirror = mirror
	}
	if err := m.scheduleMaintenance(ctx); err != nil {
		return err
	}
	m.cron.Start()
	for i := 0; i < m.count; i++ {
		workerId := fmt.Sprintf("%s-%d", m.baseId, i)
		m.wg.Add(1)
		go m.runWorker(ctx, workerId)
	}
	klog.Infof("started %d workers under %s", m.count, m.baseId)
	return nil
}

// Stop signals every worker and waits for in-flight jobs to settle.
func (m *Manager) Stop() {
	if !channel.IsChannelClosed(m.stopCh) {
		close(m.stopCh)
	}
	<-m.cron.Stop().Done()
	m.wg.Wait()
	klog.Info("worker manager stopped")
}

func (m *Manager) runWorker(ctx context.Context, workerId string) {
	defer m.wg.Done()
	hostname, _ := os.Hostname()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	m.beat(ctx, workerId, hostname, "")
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			m.beat(ctx, workerId, hostname, "")
		default:
		}

		job, err := m.queue.Lease(ctx, workerId)
		if err != nil {
			klog.ErrorS(err, "lease attempt failed", "worker", workerId)
			m.sleep(m.pollInterval)
			continue
		}
		if job == nil {
			m.sleep(m.pollInterval)
			continue
		}

		leaseGauge.Inc()
		m.beat(ctx, workerId, hostname, job.JobId)
		klog.Infof("worker %s leased job %s (priority %s, attempt %d)",
			workerId, job.JobId, job.Priority, job.RetryCount)

		if err = m.supervisor.RunJob(ctx, job); err != nil {
			klog.ErrorS(err, "failed to settle job", "job", job.JobId)
			jobsProcessed.WithLabelValues("error").Inc()
		} else {
			jobsProcessed.WithLabelValues("settled").Inc()
		}
		leaseGauge.Dec()
		m.beat(ctx, workerId, hostname, "")
		m.deliverCallback(ctx, job.JobId)
	}
}

func (m *Manager) sleep(d time.Duration) {
	select {
	case <-m.stopCh:
	case <-time.After(d):
	}
}

func (m *Manager) beat(ctx context.Context, workerId, hostname, activeJob string) {
	if err := m.db.UpsertWorkerHeartbeat(ctx, workerId, hostname, activeJob); err != nil {
		klog.ErrorS(err, "heartbeat failed", "worker", workerId)
	}
}

// deliverCallback re-reads the settled row so the callback reflects the
// final status, not the leased snapshot.
func (m *Manager) deliverCallback(ctx context.Context, jobId string) {
	job, err := m.queue.Get(ctx, jobId)
	if err != nil || job == nil {
		return
	}
	m.mirrorResult(ctx, job)
	m.notifier.Notify(job)
}

// mirrorResult uploads the finished result document to object storage so it
// outlives the local blob retention window.
func (m *Manager) mirrorResult(ctx context.Context, job *dbclient.Job) {
	if m.mirror == nil || job.Status != common.JobStatusCompleted || !job.ResultRef.Valid {
		return
	}
	doc, err := m.blobs.Get(job.ResultRef.String)
	if err != nil {
		klog.ErrorS(err, "result blob unavailable for mirroring", "job", job.JobId)
		return
	}
	key := "results/" + job.JobId + ".json"
	if _, err = m.mirror.PutObject(ctx, key, string(doc), s3.DefaultTimeout); err != nil {
		klog.ErrorS(err, "failed to mirror result", "job", job.JobId, "key", key)
		return
	}
	klog.Infof("mirrored result of job %s to %s", job.JobId, key)
}

// scheduleMaintenance registers the sweep loops: stale leases, expired
// blobs, expired cache entries, aged rate counters, and expired sessions.
func (m *Manager) scheduleMaintenance(ctx context.Context) error {
	schedules := []struct {
		name     string
		interval int
		fn       func()
	}{
		{"lease-reap", config.GetWorkerReapIntervalSecond(), func() {
			if _, err := m.supervisor.ReapStaleLeases(ctx); err != nil {
				klog.ErrorS(err, "lease reap failed")
			}
		}},
		{"blob-sweep", config.GetBlobSweepIntervalSecond(), func() {
			if n, err := m.blobs.Sweep(); err != nil {
				klog.ErrorS(err, "blob sweep failed")
			} else if n > 0 {
				klog.Infof("blob sweep reclaimed %d blobs", n)
			}
		}},
		{"cache-sweep", config.GetBlobSweepIntervalSecond(), func() {
			if n, err := m.cache.SweepExpired(ctx); err != nil {
				klog.ErrorS(err, "cache sweep failed")
			} else if n > 0 {
				klog.Infof("cache sweep dropped %d entries", n)
			}
		}},
		{"rate-counter-cleanup", config.GetRateLimitCleanupIntervalSecond(), func() {
			if n, err := m.limiter.CleanupExpired(ctx); err != nil {
				klog.ErrorS(err, "rate counter cleanup failed")
			} else if n > 0 {
				klog.Infof("dropped %d aged rate counters", n)
			}
		}},
		{"session-cleanup", config.GetRateLimitCleanupIntervalSecond(), func() {
			if n, err := m.db.DeleteExpiredTokens(ctx); err != nil {
				klog.ErrorS(err, "session cleanup failed")
			} else if n > 0 {
				klog.Infof("dropped %d expired sessions", n)
			}
		}},
	}
	for _, s := range schedules {
		spec := fmt.Sprintf("@every %ds", s.interval)
		if _, err := m.cron.AddFunc(spec, s.fn); err != nil {
			return fmt.Errorf("failed to schedule %s: %v", s.name, err)
		}
	}
	return nil
}

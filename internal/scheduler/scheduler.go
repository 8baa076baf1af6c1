// Package scheduler implements the Scheduler (spec §4.H): a durable,
// deduplicated repeating-job queue keyed by price-<mint>, backed by a
// small worker pool. Grounded on the worker-pool idiom of
// aggregatorService/worker.Pool (dispatcher + N workers, panic
// recovery with stack traces) and on the Cache Store's TrySetNX for
// the cluster-wide mutual exclusion the at-most-one-job invariant
// requires.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tokenpulse/internal/apperr"
	"tokenpulse/internal/cache"
	"tokenpulse/internal/observability"
	"tokenpulse/internal/store"
)

// DefaultPeriod is the default repeat interval for a mint's price job.
const DefaultPeriod = time.Second

// DefaultWorkerCount is the default worker pool size.
const DefaultWorkerCount = 10

// banTTL bounds how long a mint stays banned before it may be
// considered for readmission via the Token Validator (§4.H).
const banTTL = 24 * time.Hour

// sweepInterval is how often bootstrap's periodic sweep re-runs
// ban-driven purges against the Persistent Store.
const sweepInterval = 10 * time.Minute

// leaseTTL bounds how long a cluster-wide job lease survives without
// renewal; it must exceed period by enough margin that a live owner's
// renewal always lands before it lapses.
const leaseTTL = 5 * time.Second

// PricingEngine is the subset of the Pricing Engine the Scheduler
// invokes on every tick.
type PricingEngine interface {
	UpdateMint(ctx context.Context, mint string) error
}

// MintValidator is the subset of the Token Validator the Scheduler
// needs to gate enrolment.
type MintValidator interface {
	Validate(ctx context.Context, mint string) error
}

type localJob struct {
	stop chan struct{}
}

// Scheduler owns the repeating price-update job for every tracked
// mint (§4.H).
type Scheduler struct {
	pricing   PricingEngine
	validator MintValidator
	cache     cache.Store
	store     store.Store
	log       *logrus.Entry

	period      time.Duration
	workerCount int
	instanceID  string

	jobQueue chan string
	quit     chan struct{}
	wg       sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*localJob
}

// New builds a Scheduler. period and workerCount fall back to their
// documented defaults when zero.
func New(pricing PricingEngine, validator MintValidator, cacheStore cache.Store, persistentStore store.Store, log *logrus.Entry, period time.Duration, workerCount int) *Scheduler {
	if period <= 0 {
		period = DefaultPeriod
	}
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	return &Scheduler{
		pricing:     pricing,
		validator:   validator,
		cache:       cacheStore,
		store:       persistentStore,
		log:         log,
		period:      period,
		workerCount: workerCount,
		instanceID:  uuid.NewString(),
		jobQueue:    make(chan string, workerCount*4),
		quit:        make(chan struct{}),
		jobs:        make(map[string]*localJob),
	}
}

func jobPrefix(mint string) string { return fmt.Sprintf("job:price-%s:", mint) }
func ownerKey(mint string) string  { return jobPrefix(mint) + "owner" }

// Start launches the worker pool and the periodic sweep.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.runWorker(ctx, i)
	}
	s.wg.Add(1)
	go s.runSweep(ctx)
}

// Stop signals every worker and local ticker to exit and waits for
// them to finish.
func (s *Scheduler) Stop() {
	close(s.quit)
	s.mu.Lock()
	for _, j := range s.jobs {
		close(j.stop)
	}
	s.jobs = make(map[string]*localJob)
	s.mu.Unlock()
	s.wg.Wait()
}

// Enrol validates mint, removes all previous traces of its job, and
// adds exactly one repeating job. Idempotent: calling twice yields
// exactly one repeating job (§4.H enrol).
func (s *Scheduler) Enrol(ctx context.Context, mint string) error {
	if err := s.validator.Validate(ctx, mint); err != nil {
		return err
	}
	s.Obliterate(ctx, mint)
	s.addRepeating(ctx, mint)
	return nil
}

// addRepeating claims the cluster-wide lease for mint and, only if the
// claim succeeds, starts a local ticker feeding jobQueue. A failed
// claim means another instance already owns this mint's job; that is
// not an error; it is the dedup invariant doing its job (§5).
func (s *Scheduler) addRepeating(ctx context.Context, mint string) {
	ok, err := s.cache.TrySetNX(ctx, ownerKey(mint), []byte(s.instanceID), leaseTTL)
	if err != nil {
		s.log.WithError(err).WithField("mint", mint).Warn("scheduler: lease acquisition failed")
		return
	}
	if !ok {
		return
	}

	job := &localJob{stop: make(chan struct{})}
	s.mu.Lock()
	s.jobs[mint] = job
	count := len(s.jobs)
	s.mu.Unlock()
	observability.DefaultMetrics.ActiveRepeatingJobs.Set(float64(count))

	s.wg.Add(1)
	go s.runTicker(mint, job)
}

func (s *Scheduler) runTicker(mint string, job *localJob) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-job.stop:
			return
		case <-s.quit:
			return
		case <-ticker.C:
			renewCtx, cancel := context.WithTimeout(context.Background(), s.period)
			_ = s.cache.SetWithTTL(renewCtx, ownerKey(mint), []byte(s.instanceID), leaseTTL)
			cancel()

			select {
			case s.jobQueue <- mint:
			default:
				s.log.WithField("mint", mint).Warn("scheduler: job queue full, dropping tick")
			}
		}
	}
}

// RemoveRepeating stops mint's local ticker, if any, and releases its
// cluster-wide lease.
func (s *Scheduler) RemoveRepeating(ctx context.Context, mint string) {
	s.mu.Lock()
	job, ok := s.jobs[mint]
	if ok {
		delete(s.jobs, mint)
	}
	count := len(s.jobs)
	s.mu.Unlock()
	observability.DefaultMetrics.ActiveRepeatingJobs.Set(float64(count))

	if ok {
		close(job.stop)
	}
	_ = s.cache.Delete(ctx, ownerKey(mint))
}

// ListRepeating enumerates mints with an active cluster-wide lease.
func (s *Scheduler) ListRepeating(ctx context.Context) ([]string, error) {
	keys, err := s.cache.ScanByPrefix(ctx, "job:price-")
	if err != nil {
		return nil, err
	}
	mints := make([]string, 0, len(keys))
	for _, k := range keys {
		mint := trimJobKey(k)
		if mint != "" {
			mints = append(mints, mint)
		}
	}
	return mints, nil
}

func trimJobKey(key string) string {
	const prefix, suffix = "job:price-", ":owner"
	if len(key) <= len(prefix)+len(suffix) {
		return ""
	}
	if key[:len(prefix)] != prefix || key[len(key)-len(suffix):] != suffix {
		return ""
	}
	return key[len(prefix) : len(key)-len(suffix)]
}

// Obliterate removes mint's repeatable entry and every queue-internal
// key under its prefix. It completes even if some lookups fail;
// partial failures are logged, never raised (§4.H obliterate).
func (s *Scheduler) Obliterate(ctx context.Context, mint string) {
	s.RemoveRepeating(ctx, mint)

	keys, err := s.cache.ScanByPrefix(ctx, jobPrefix(mint))
	if err != nil {
		s.log.WithError(err).WithField("mint", mint).Warn("scheduler: obliterate scan failed")
		return
	}
	if len(keys) > 0 {
		if err := s.cache.Delete(ctx, keys...); err != nil {
			s.log.WithError(err).WithField("mint", mint).Warn("scheduler: obliterate delete failed")
		}
	}
}

// BanAndRemove bans mint for banTTL, obliterates its job, and purges
// it from the Persistent Store (§4.H).
func (s *Scheduler) BanAndRemove(ctx context.Context, mint string) {
	if err := s.cache.SetWithTTL(ctx, cache.InvalidTokenKey(mint), []byte("banned"), banTTL); err != nil {
		s.log.WithError(err).WithField("mint", mint).Warn("scheduler: ban write failed")
	}
	observability.DefaultMetrics.MintsBannedTotal.Inc()
	s.Obliterate(ctx, mint)
	if err := s.store.PurgeMint(ctx, mint); err != nil {
		s.log.WithError(err).WithField("mint", mint).Warn("scheduler: purge after ban failed")
	}
}

func (s *Scheduler) isBanned(ctx context.Context, mint string) bool {
	_, ok, err := s.cache.Get(ctx, cache.InvalidTokenKey(mint))
	return err == nil && ok
}

// runWorker consumes jobQueue and applies the §4.H worker semantics,
// recovering from panics with a logged stack trace (grounded on
// worker.Pool.processJob).
func (s *Scheduler) runWorker(ctx context.Context, id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case mint, ok := <-s.jobQueue:
			if !ok {
				return
			}
			s.process(ctx, id, mint)
		}
	}
}

func (s *Scheduler) process(ctx context.Context, workerID int, mint string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("worker", workerID).WithField("mint", mint).
				Errorf("scheduler: job panicked: %v\n%s", r, debug.Stack())
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	started := time.Now()

	if s.isBanned(jobCtx, mint) {
		s.Obliterate(jobCtx, mint)
		observability.RecordJobTick("banned", time.Since(started).Seconds())
		return
	}

	if err := s.pricing.UpdateMint(jobCtx, mint); err != nil {
		if kind, ok := apperr.KindOf(err); ok && kind == apperr.KindInvalidMint {
			s.BanAndRemove(jobCtx, mint)
			observability.RecordJobTick("invalid", time.Since(started).Seconds())
			return
		}
		s.log.WithError(err).WithField("mint", mint).Warn("scheduler: updateMint failed, no retry this tick")
		observability.RecordJobTick("error", time.Since(started).Seconds())
		return
	}
	observability.RecordJobTick("ok", time.Since(started).Seconds())
}

// runSweep re-runs ban-driven purges on the Persistent Store every
// sweepInterval (§4.H bootstrap).
func (s *Scheduler) runSweep(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Scheduler) sweepOnce(ctx context.Context) {
	const pageSize = 200
	for page := 1; ; page++ {
		snapshots, total, err := s.store.ListLatest(ctx, (page-1)*pageSize, pageSize)
		if err != nil {
			s.log.WithError(err).Warn("scheduler: sweep listLatest failed")
			return
		}
		for _, snap := range snapshots {
			if s.isBanned(ctx, snap.Mint) {
				if err := s.store.PurgeMint(ctx, snap.Mint); err != nil {
					s.log.WithError(err).WithField("mint", snap.Mint).Warn("scheduler: sweep purge failed")
				}
			}
		}
		if page*pageSize >= total {
			return
		}
	}
}

// Bootstrap reconciles state at process start: banned mints are
// dropped, the rest are re-enrolled (§4.H bootstrap).
func (s *Scheduler) Bootstrap(ctx context.Context) error {
	const pageSize = 200
	for page := 1; ; page++ {
		snapshots, total, err := s.store.ListLatest(ctx, (page-1)*pageSize, pageSize)
		if err != nil {
			return apperr.Persistence(err)
		}
		for _, snap := range snapshots {
			if s.isBanned(ctx, snap.Mint) {
				continue
			}
			if err := s.Enrol(ctx, snap.Mint); err != nil {
				s.log.WithError(err).WithField("mint", snap.Mint).Warn("scheduler: bootstrap re-enrol failed")
			}
		}
		if page*pageSize >= total {
			break
		}
	}
	return nil
}

package core

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hzhu212/data-monitor/config"
	"github.com/hzhu212/data-monitor/logging"
	"github.com/hzhu212/data-monitor/model"
	"github.com/hzhu212/data-monitor/template"
)

// DefaultPoolSize is the worker pool size used when a job config section
// does not override it.
const DefaultPoolSize = 16

// DefaultPollInterval is how long the controller sleeps between checks of
// the due-time queue when a job is already running.
const DefaultPollInterval = 5 * time.Second

// Alerter is implemented by the alerting dispatcher; the scheduler only
// needs to hand it a job and an AlarmInfo, never builds message bodies
// itself.
type Alerter interface {
	Dispatch(job *model.Job, info model.AlarmInfo)
}

// entryHeap is a container/heap.Interface over model.ScheduledEntry,
// ordered by DueTime ascending with insertion-order tiebreaking — the
// Go-native equivalent of the reference tool's Queue.PriorityQueue.
type entryHeap []*model.ScheduledEntry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].DueTime.Equal(h[j].DueTime) {
		return h[i].Seq < h[j].Seq
	}
	return h[i].DueTime.Before(h[j].DueTime)
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(*model.ScheduledEntry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Scheduler drives the due-time dispatch loop: a min-heap of pending
// entries, a bounded worker pool, and an in-flight map, following the
// teacher's own Start/Stop/mutex/wg shape (core/scheduler.go) but
// replacing cron recurrence with the due-time priority queue described
// by the job lifecycle engine.
type Scheduler struct {
	log           logging.Logger
	clock         Clock
	executor      *Executor
	alerter       Alerter
	renderer      *template.Renderer
	poolSize      int
	pollInterval  time.Duration

	mu        sync.Mutex
	queue     entryHeap
	seq       int64
	inFlight  map[string]struct{}
	completed int

	sem       chan struct{}
	results   chan completion
	wg        sync.WaitGroup
	cancel    chan struct{}
	cancelled bool
}

type completion struct {
	job *model.Job
	ok  bool
	info model.AlarmInfo
	err  error
}

// NewScheduler returns a Scheduler with the given worker pool size (0
// means DefaultPoolSize) and poll interval (0 means DefaultPollInterval).
func NewScheduler(log logging.Logger, clock Clock, executor *Executor, alerter Alerter, renderer *template.Renderer, poolSize int, pollInterval time.Duration) *Scheduler {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Scheduler{
		log:          log,
		clock:        clock,
		executor:     executor,
		alerter:      alerter,
		renderer:     renderer,
		poolSize:     poolSize,
		pollInterval: pollInterval,
		inFlight:     map[string]struct{}{},
		sem:          make(chan struct{}, poolSize),
		results:      make(chan completion, poolSize),
		cancel:       make(chan struct{}),
	}
}

// Seed populates the scheduler's queue from a batch of validated jobs,
// applying the startup rules: skip inactive jobs, skip non-hourly jobs
// not due today, and expand hourly jobs into 24 hour-offset clones
// regardless of date.
func (s *Scheduler) Seed(jobs []*model.Job, today time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range jobs {
		if !job.IsActive {
			s.log.Noticef("job %q is inactive, skipping", job.Name)
			continue
		}
		if job.Period == model.PeriodHour {
			for h := 0; h < 24; h++ {
				clone := job.Clone()
				clone.Name = fmt.Sprintf("%s_hour%02d", job.Name, h)
				clone.DueTime = job.DueTime.Add(time.Duration(h) * time.Hour)
				s.finalizeAndPush(clone)
			}
			continue
		}
		if !sameDate(job.DueTime, today) {
			s.log.Noticef("job %q due_time %s is not today, skipping", job.Name, job.DueTime)
			continue
		}
		s.finalizeAndPush(job)
	}
}

// finalizeAndPush runs Pass-2 template rendering against job's final due
// time (sql_statements and validator are the only dependent options) and
// enqueues the result. A Pass-2 failure is reported as a config_error
// alert and the job is skipped, the same treatment the Job Validator
// itself gives a failing job.
func (s *Scheduler) finalizeAndPush(job *model.Job) {
	final, err := config.FinalizeJob(job, s.renderer)
	if err != nil {
		s.log.Warningf("job %q: pass-2 rendering failed: %v", job.Name, err)
		if s.alerter != nil {
			info := model.NewAlarmInfo(model.AlarmConfigError, err.Error())
			s.alerter.Dispatch(job, info)
		}
		return
	}
	s.push(final)
}

func sameDate(t, ref time.Time) bool {
	ty, tm, td := t.Date()
	ry, rm, rd := ref.Date()
	return ty == ry && tm == rm && td == rd
}

func (s *Scheduler) push(job *model.Job) {
	s.seq++
	heap.Push(&s.queue, &model.ScheduledEntry{DueTime: job.DueTime, Job: job, Seq: s.seq})
}

// Len reports how many entries are currently queued, for tests and the
// empty-scheduler guard.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Run drives the main loop until the queue is empty and nothing is
// in-flight, or the scheduler is cancelled. It blocks the calling
// goroutine; callers that want graceful shutdown call Stop from another
// goroutine or cancel ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	empty := len(s.queue) == 0
	s.mu.Unlock()
	if empty {
		return ErrEmptyScheduler
	}

	for {
		if s.isDone() {
			s.wg.Wait()
			return nil
		}

		s.dispatchDue(ctx)
		s.drainCompletions()

		if s.isDone() {
			s.wg.Wait()
			return nil
		}

		wait := s.nextWait()
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return nil
		case <-s.cancel:
			s.wg.Wait()
			return nil
		case <-s.afterChan(wait):
		case c := <-s.results:
			s.handleCompletion(c)
		}
	}
}

func (s *Scheduler) afterChan(d time.Duration) <-chan time.Time {
	ch, _ := s.clock.After(d)
	return ch
}

func (s *Scheduler) isDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) == 0 && len(s.inFlight) == 0
}

// nextWait computes the controller's cancellable-wait duration: poll
// interval while something is running, else sleep until the next due
// entry.
func (s *Scheduler) nextWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.inFlight) > 0 {
		return s.pollInterval
	}
	if len(s.queue) == 0 {
		return s.pollInterval
	}
	next := s.queue[0].DueTime
	now := s.clock.Now()
	if next.Before(now) {
		return 0
	}
	return next.Sub(now)
}

// dispatchDue submits every entry whose due time has arrived to the
// worker pool, respecting the semaphore-bounded concurrency.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.cancelled || len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		top := s.queue[0]
		if top.DueTime.After(s.clock.Now()) {
			s.mu.Unlock()
			return
		}
		entry := heap.Pop(&s.queue).(*model.ScheduledEntry)
		s.inFlight[entry.Job.Name] = struct{}{}
		s.mu.Unlock()

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		s.wg.Add(1)
		go s.runJob(ctx, entry.Job)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job *model.Job) {
	defer s.wg.Done()
	defer func() { <-s.sem }()

	runID := uuid.NewString()
	s.log.Debugf("job %q: starting run %s", job.Name, runID)

	result, err := s.executor.Run(ctx, job)

	c := completion{job: job}
	switch {
	case err != nil:
		c.ok = false
		c.err = err
		c.info = infoFromError(job.Name, err)
	case !result.OK:
		c.ok = false
		c.info = result.Info
	default:
		c.ok = true
	}

	select {
	case s.results <- c:
	case <-ctx.Done():
	}
}

func infoFromError(jobName string, err error) model.AlarmInfo {
	var ve *ValidatorError
	if asValidatorError(err, &ve) {
		return model.NewAlarmInfo(model.AlarmException, ve.Stack)
	}
	return model.NewAlarmInfo(model.AlarmException, err.Error())
}

func asValidatorError(err error, target **ValidatorError) bool {
	ve, ok := err.(*ValidatorError)
	if ok {
		*target = ve
	}
	return ok
}

// drainCompletions processes every completion currently ready without
// blocking, so the controller never stalls submission behind collection.
func (s *Scheduler) drainCompletions() {
	for {
		select {
		case c := <-s.results:
			s.handleCompletion(c)
		default:
			return
		}
	}
}

func (s *Scheduler) handleCompletion(c completion) {
	s.mu.Lock()
	delete(s.inFlight, c.job.Name)
	if c.ok {
		s.completed++
	}
	s.mu.Unlock()

	if c.ok {
		s.log.Noticef("job %q completed OK", c.job.Name)
		return
	}

	s.log.Warningf("job %q failed: %v", c.job.Name, c.info)
	if s.alerter != nil {
		s.alerter.Dispatch(c.job, c.info)
	}

	if c.job.RetryTimes > 0 {
		retryJob := c.job.Clone()
		retryJob.RetryTimes--
		retryJob.DueTime = s.clock.Now().Add(c.job.RetryInterval)
		s.log.Noticef("job %q: re-enqueuing retry at %s (%d attempts left)", retryJob.Name, retryJob.DueTime, retryJob.RetryTimes)
		s.mu.Lock()
		s.push(retryJob)
		s.mu.Unlock()
	}
}

// Stop signals the controller to exit after its current iteration.
// In-flight workers are not interrupted; Run waits for them before
// returning.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.mu.Unlock()
	close(s.cancel)
}

// Completed returns the number of jobs that have finished successfully.
func (s *Scheduler) Completed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Package scheduler throttles network work per traffic class. Each profile
// has a concurrency ceiling and a per-tick dispatch ceiling; queued tasks are
// only started from Tick, which the host drives from its frame loop (Run does
// this on a fixed interval). MaxPerTick bounds tasks newly started in one tick:
// a slot freed while a dispatch pass runs is refilled on the next tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// DefaultProfile 是未知流量类别回退使用的 profile 名称。
const DefaultProfile = "default"

var (
	// ErrUnknownProfile 表示 profile 不存在且没有 default 可回退。
	ErrUnknownProfile = errors.New("unknown scheduler profile")
	// ErrStopped 表示调度器已停止，不再接收或派发任务。
	ErrStopped = errors.New("scheduler stopped")
)

// Profile 描述一个流量类别的限流参数。
type Profile struct {
	Name           string
	MaxConcurrency int
	MaxPerTick     int
}

// Task 是被调度的异步工作单元。ctx 不随调用方取消，已派发的任务总会执行完毕。
type Task func(ctx context.Context)

// Observer 接收队列深度变化，metrics 包实现该接口。
type Observer interface {
	ObserveQueue(profile string, pending, running int)
}

// Stats 是某个 profile 的队列快照。
type Stats struct {
	Profile        string `json:"profile"`
	MaxConcurrency int    `json:"max_concurrency"`
	MaxPerTick     int    `json:"max_per_tick"`
	Pending        int    `json:"pending"`
	Running        int    `json:"running"`
	Dispatched     uint64 `json:"dispatched"`
}

type job struct {
	ctx  context.Context
	run  Task
	drop func(error)
}

type queue struct {
	profile    Profile
	pending    []job
	running    int
	dispatched uint64
}

// Option 调整 Scheduler 行为。
type Option func(*Scheduler)

// WithClock 注入时钟，Run 使用它产生 tick。
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithInterval 设置 Run 的 tick 间隔。
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger 注入 logger，用于记录任务 panic。
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver 注入队列观测者。
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// Scheduler 为每个 profile 维护独立的 FIFO 队列。
type Scheduler struct {
	clock    clock.Clock
	interval time.Duration
	logger   *logrus.Logger
	observer Observer

	mu      sync.Mutex
	queues  map[string]*queue
	stopped bool
}

// New 根据 profile 列表构建调度器，名称大小写不敏感。
func New(profiles []Profile, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		clock:    clock.New(),
		interval: 16 * time.Millisecond,
		queues:   make(map[string]*queue, len(profiles)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}

	for _, p := range profiles {
		name := normalizeProfile(p.Name)
		if name == "" {
			return nil, errors.New("profile name required")
		}
		if p.MaxConcurrency <= 0 || p.MaxPerTick <= 0 {
			return nil, fmt.Errorf("profile %s: limits must be positive", name)
		}
		p.Name = name
		s.queues[name] = &queue{profile: p}
	}
	return s, nil
}

// Submit 将任务放入 profile 队列后立即返回，任务在之后的某个 Tick 中被派发。
func (s *Scheduler) Submit(ctx context.Context, profile string, task Task) error {
	if task == nil {
		return errors.New("task required")
	}
	return s.enqueue(ctx, profile, task, nil)
}

// Do 提交 fn 并等待其完成。ctx 取消只会让 Do 提前返回，已入队的任务仍会执行。
func (s *Scheduler) Do(ctx context.Context, profile string, fn func(context.Context) error) error {
	done := make(chan error, 1)
	run := func(taskCtx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("scheduled task panic: %v", r)
			}
		}()
		done <- fn(taskCtx)
	}
	drop := func(err error) { done <- err }

	if err := s.enqueue(ctx, profile, run, drop); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) enqueue(ctx context.Context, profile string, run Task, drop func(error)) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	q, err := s.resolve(profile)
	if err != nil {
		return err
	}
	q.pending = append(q.pending, job{ctx: context.WithoutCancel(ctx), run: run, drop: drop})
	s.observe(q)
	return nil
}

// Tick 执行一次派发：每个 profile 最多新启动 MaxPerTick 个任务，且运行中任务不超过
// MaxConcurrency。返回本次派发的任务总数。
func (s *Scheduler) Tick() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0
	}

	total := 0
	for _, q := range s.queues {
		started := 0
		for started < q.profile.MaxPerTick && q.running < q.profile.MaxConcurrency && len(q.pending) > 0 {
			next := q.pending[0]
			q.pending[0] = job{}
			q.pending = q.pending[1:]
			q.running++
			q.dispatched++
			started++
			go s.execute(q, next)
		}
		if started > 0 {
			s.observe(q)
		}
		total += started
	}
	return total
}

// Run 按固定间隔调用 Tick，直到 ctx 结束。
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Stop 拒绝后续提交，并以 ErrStopped 结束所有尚未派发的任务；运行中的任务不受影响。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	var dropped []job
	for _, q := range s.queues {
		dropped = append(dropped, q.pending...)
		q.pending = nil
		s.observe(q)
	}
	s.mu.Unlock()

	for _, j := range dropped {
		if j.drop != nil {
			j.drop(ErrStopped)
		}
	}
}

// Stats 返回按名称排序的队列快照。
func (s *Scheduler) Stats() []Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Stats, 0, len(s.queues))
	for name, q := range s.queues {
		result = append(result, Stats{
			Profile:        name,
			MaxConcurrency: q.profile.MaxConcurrency,
			MaxPerTick:     q.profile.MaxPerTick,
			Pending:        len(q.pending),
			Running:        q.running,
			Dispatched:     q.dispatched,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Profile < result[j].Profile })
	return result
}

func (s *Scheduler) execute(q *queue, j job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"action":  "schedule",
				"profile": q.profile.Name,
			}).Errorf("scheduled task panic: %v", r)
		}
		s.mu.Lock()
		q.running--
		s.observe(q)
		s.mu.Unlock()
	}()
	j.run(j.ctx)
}

// resolve 查找 profile，未知名称回退到 default。调用方需持有 s.mu。
func (s *Scheduler) resolve(profile string) (*queue, error) {
	name := normalizeProfile(profile)
	if name == "" {
		name = DefaultProfile
	}
	if q, ok := s.queues[name]; ok {
		return q, nil
	}
	if q, ok := s.queues[DefaultProfile]; ok {
		return q, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
}

func (s *Scheduler) observe(q *queue) {
	if s.observer != nil {
		s.observer.ObserveQueue(q.profile.Name, len(q.pending), q.running)
	}
}

func normalizeProfile(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

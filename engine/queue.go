package engine

import (
	"context"
	"sync"
)

// Job is a unit of work run by a GuildQueue.
type Job func(ctx context.Context)

type queued struct {
	ctx context.Context
	job Job
}

// GuildQueue runs jobs in FIFO order per guild, at most one at a time per
// guild, with a global limit on how many guilds run concurrently.
type GuildQueue struct {
	mu        sync.Mutex
	queues    map[string][]queued
	running   map[string]bool
	order     []string
	active    int
	maxActive int
	wg        sync.WaitGroup
}

// NewGuildQueue creates a queue running at most maxConcurrent jobs.
func NewGuildQueue(maxConcurrent int) *GuildQueue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &GuildQueue{
		queues:    make(map[string][]queued),
		running:   make(map[string]bool),
		maxActive: maxConcurrent,
	}
}

// Enqueue adds job to guild's queue. ctx is passed to the job.
func (q *GuildQueue) Enqueue(ctx context.Context, guild string, job Job) {
	q.mu.Lock()
	if _, ok := q.queues[guild]; !ok && !q.running[guild] {
		q.order = append(q.order, guild)
	}
	q.queues[guild] = append(q.queues[guild], queued{ctx: ctx, job: job})
	q.wg.Add(1)
	q.mu.Unlock()
	q.dispatch()
}

// Wait blocks until every enqueued job has finished.
func (q *GuildQueue) Wait() {
	q.wg.Wait()
}

// Pending reports how many jobs are waiting to start.
func (q *GuildQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, jobs := range q.queues {
		n += len(jobs)
	}
	return n
}

// dispatch starts as many idle guilds' next jobs as the limit allows.
// Guilds are served round robin in the order they first had work.
func (q *GuildQueue) dispatch() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.active < q.maxActive {
		idx := -1
		for i, g := range q.order {
			if !q.running[g] && len(q.queues[g]) > 0 {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}

		guild := q.order[idx]
		next := q.queues[guild][0]
		q.queues[guild] = q.queues[guild][1:]
		q.order = append(q.order[:idx], q.order[idx+1:]...)
		if len(q.queues[guild]) == 0 {
			delete(q.queues, guild)
		}
		q.running[guild] = true
		q.active++

		go q.run(guild, next)
	}
}

func (q *GuildQueue) run(guild string, next queued) {
	defer q.wg.Done()
	next.job(next.ctx)

	q.mu.Lock()
	delete(q.running, guild)
	q.active--
	if len(q.queues[guild]) > 0 {
		q.order = append(q.order, guild)
	}
	q.mu.Unlock()
	q.dispatch()
}

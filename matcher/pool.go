package matcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/sirupsen/logrus"

	"github.com/gobridge/retrigger/trigger"
)

// ErrClosed is returned by Match after Close.
var ErrClosed = errors.New("matcher pool closed")

// Config sizes the pool.
type Config struct {
	// Workers is the number of concurrent evaluations.
	Workers int
	// Timeout bounds a single evaluation, queueing included.
	Timeout time.Duration
	// MaxTasksPerWorker recycles a worker, dropping its compiled pattern
	// cache, after that many evaluations. Zero disables recycling.
	MaxTasksPerWorker int
}

// DefaultConfig is used for zero fields of the Config passed to NewPool.
var DefaultConfig = Config{
	Workers:           4,
	Timeout:           2 * time.Second,
	MaxTasksPerWorker: 1000,
}

type job struct {
	ctx       context.Context
	source    string
	text      string
	filenames []string
	reply     chan result
	// claimed is set by whichever side finishes with the job first: the
	// worker delivering a result or the caller abandoning it.
	claimed *atomic.Bool
}

type result struct {
	match *Match
	err   error
}

// Pool runs pattern evaluations off the caller's goroutine.
type Pool struct {
	cfg  Config
	log  logrus.FieldLogger
	jobs chan job
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewPool starts cfg.Workers workers.
func NewPool(cfg Config, log logrus.FieldLogger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig.Workers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Pool{
		cfg:  cfg,
		log:  log.WithField("component", "matcher"),
		jobs: make(chan job),
		quit: make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.spawn()
	}
	return p
}

// Timeout returns the per-evaluation budget.
func (p *Pool) Timeout() time.Duration {
	return p.cfg.Timeout
}

// Match evaluates source against text, then against filenames, and
// returns the first match or nil. It returns trigger.ErrEvaluationTimeout
// when the evaluation does not finish in time and a wrapped
// trigger.ErrInvalidPattern when source does not compile.
func (p *Pool) Match(ctx context.Context, source, text string, filenames []string) (*Match, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	j := job{
		ctx:       ctx,
		source:    source,
		text:      text,
		filenames: filenames,
		reply:     make(chan result, 1),
		claimed:   new(atomic.Bool),
	}

	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return nil, p.ctxErr(ctx)
	case <-p.quit:
		return nil, ErrClosed
	}

	select {
	case r := <-j.reply:
		return r.match, r.err
	case <-ctx.Done():
		if !j.claimed.CompareAndSwap(false, true) {
			r := <-j.reply
			return r.match, r.err
		}
		// The worker is still busy with a runaway pattern; it retires once
		// regexp2 gives up, so start its replacement now.
		p.spawn()
		return nil, p.ctxErr(ctx)
	}
}

// Close stops the workers. Evaluations in flight finish on their own.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

func (p *Pool) ctxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", trigger.ErrEvaluationTimeout, p.cfg.Timeout)
	}
	return ctx.Err()
}

func (p *Pool) spawn() {
	select {
	case <-p.quit:
		return
	default:
	}
	p.wg.Add(1)
	go p.work()
}

func (p *Pool) work() {
	defer p.wg.Done()

	cache := make(map[string]*regexp2.Regexp)
	served := 0
	for {
		select {
		case <-p.quit:
			return
		case j := <-p.jobs:
			r := p.evaluate(cache, j)
			served++

			if !j.claimed.CompareAndSwap(false, true) {
				// The caller gave up and already replaced this worker.
				return
			}
			j.reply <- r

			if p.cfg.MaxTasksPerWorker > 0 && served >= p.cfg.MaxTasksPerWorker {
				p.spawn()
				return
			}
		}
	}
}

func (p *Pool) evaluate(cache map[string]*regexp2.Regexp, j job) (r result) {
	defer func() {
		if v := recover(); v != nil {
			p.log.WithField("pattern", j.source).Errorf("panic while matching: %v", v)
			r = result{err: fmt.Errorf("matching %q: panic: %v", j.source, v)}
		}
	}()

	re, ok := cache[j.source]
	if !ok {
		var err error
		re, err = Compile(j.source)
		if err != nil {
			return result{err: err}
		}
		re.MatchTimeout = p.cfg.Timeout
		cache[j.source] = re
	}

	m, err := find(re, j.text, j.filenames)
	if err != nil {
		return result{err: fmt.Errorf("%w: %v", trigger.ErrEvaluationTimeout, err)}
	}
	return result{match: m}
}

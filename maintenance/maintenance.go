// Package maintenance runs periodic housekeeping on a cron schedule.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/trace"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Task is one unit of housekeeping.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Maintainer polls its tasks.
type Maintainer struct {
	tasks       []Task
	minInterval time.Duration
	traceClient *trace.Client
	log         logrus.FieldLogger
	now         func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

// New constructs a *Maintainer.
//
// minInterval skips a Poll that comes sooner than that after the last
// one, so a schedule typo cannot hammer the store. traceClient may be nil.
func New(minInterval time.Duration, traceClient *trace.Client, log logrus.FieldLogger, tasks ...Task) *Maintainer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Maintainer{
		tasks:       tasks,
		minInterval: minInterval,
		traceClient: traceClient,
		log:         log.WithField("component", "maintenance"),
		now:         time.Now,
	}
}

// Poll runs every task once. A failing task does not stop the others; the
// first error is returned.
func (m *Maintainer) Poll(ctx context.Context) error {
	span := trace.FromContext(ctx).NewChild("Maintainer.Poll")
	defer span.Finish()

	now := m.now()
	m.mu.Lock()
	if !m.lastRun.IsZero() && now.Before(m.lastRun.Add(m.minInterval)) {
		m.mu.Unlock()
		return nil
	}
	m.lastRun = now
	m.mu.Unlock()

	var first error
	for _, t := range m.tasks {
		if err := m.run(ctx, span, t); err != nil {
			m.log.WithField("task", t.Name).Warnf("maintenance task failed: %v", err)
			if first == nil {
				first = fmt.Errorf("%s: %v", t.Name, err)
			}
		}
	}
	return first
}

func (m *Maintainer) run(ctx context.Context, span *trace.Span, t Task) (err error) {
	childSpan := span.NewChild("Maintainer." + t.Name)
	defer childSpan.Finish()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Run(trace.NewContext(ctx, childSpan))
}

// Schedule polls on the cron spec until ctx is done. Standard five field
// specs and descriptors such as "@every 10m" are accepted.
func (m *Maintainer) Schedule(ctx context.Context, spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		pctx := ctx
		if m.traceClient != nil {
			span := m.traceClient.NewSpan("maintenance")
			defer span.Finish()
			pctx = trace.NewContext(ctx, span)
		}
		if err := m.Poll(pctx); err != nil {
			m.log.Errorf("maintenance: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("parsing maintenance schedule %q: %v", spec, err)
	}

	m.log.WithField("schedule", spec).Info("maintenance scheduled")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

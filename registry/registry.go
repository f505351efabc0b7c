// Package registry owns every guild's triggers and settings. Each guild
// has a single writer at a time; readers get copies.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gobridge/retrigger/matcher"
	"github.com/gobridge/retrigger/trigger"
)

type guild struct {
	mu sync.Mutex

	loaded    bool
	triggers  map[string]*trigger.Trigger
	positions map[string]int
	order     []string
	next      int
	settings  trigger.Settings
}

// Registry is the in-memory view of all guilds, loaded lazily from a
// Store and written through to it.
type Registry struct {
	store Store
	log   logrus.FieldLogger

	mu     sync.Mutex
	guilds map[string]*guild
}

// New constructs a *Registry backed by s.
func New(s Store, log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		store:  s,
		log:    log.WithField("component", "registry"),
		guilds: make(map[string]*guild),
	}
}

func (r *Registry) guild(id string) *guild {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guilds[id]
	if !ok {
		g = &guild{}
		r.guilds[id] = g
	}
	return g
}

// lock returns the guild locked and loaded.
func (r *Registry) lock(ctx context.Context, guildID string) (*guild, error) {
	g := r.guild(guildID)
	g.mu.Lock()
	if g.loaded {
		return g, nil
	}

	state, err := r.store.LoadGuild(ctx, guildID)
	if err != nil {
		g.mu.Unlock()
		r.log.WithField("guild", guildID).Errorf("loading guild: %v", err)
		return nil, fmt.Errorf("%w: loading guild %s: %v", trigger.ErrStorageUnavailable, guildID, err)
	}

	g.triggers = make(map[string]*trigger.Trigger, len(state.Triggers))
	g.positions = make(map[string]int, len(state.Triggers))
	g.order = g.order[:0]
	g.next = 0
	for i, t := range state.Triggers {
		pos := i
		if i < len(state.Positions) {
			pos = state.Positions[i]
		}
		g.triggers[t.Name] = t
		g.positions[t.Name] = pos
		g.order = append(g.order, t.Name)
		if pos >= g.next {
			g.next = pos + 1
		}
	}
	g.settings = state.Settings
	g.loaded = true
	return g, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", trigger.ErrStorageUnavailable, op, err)
}

// Add stores t as a new trigger of guildID. The pattern must compile and
// the name must not be taken.
func (r *Registry) Add(ctx context.Context, guildID string, t *trigger.Trigger) error {
	if err := matcher.Validate(t.Pattern); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}

	g, err := r.lock(ctx, guildID)
	if err != nil {
		return err
	}
	defer g.mu.Unlock()

	if _, ok := g.triggers[t.Name]; ok {
		return fmt.Errorf("%w: %s", trigger.ErrDuplicateName, t.Name)
	}

	t = t.Clone()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	pos := g.next
	if err := r.store.PutTrigger(ctx, guildID, pos, t); err != nil {
		return storageErr("saving trigger", err)
	}

	g.triggers[t.Name] = t
	g.positions[t.Name] = pos
	g.order = append(g.order, t.Name)
	g.next++

	r.log.WithFields(logrus.Fields{
		"guild":   guildID,
		"trigger": t.Name,
		"kind":    t.ResponseTypes,
	}).Info("trigger added")
	return nil
}

// Remove deletes the named trigger.
func (r *Registry) Remove(ctx context.Context, guildID, name string) error {
	g, err := r.lock(ctx, guildID)
	if err != nil {
		return err
	}
	defer g.mu.Unlock()

	if _, ok := g.triggers[name]; !ok {
		return fmt.Errorf("%w: %s", trigger.ErrNotFound, name)
	}
	if err := r.store.DeleteTrigger(ctx, guildID, name); err != nil && err != trigger.ErrNotFound {
		return storageErr("deleting trigger", err)
	}

	delete(g.triggers, name)
	delete(g.positions, name)
	for i, n := range g.order {
		if n == name {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}

	r.log.WithFields(logrus.Fields{"guild": guildID, "trigger": name}).Info("trigger removed")
	return nil
}

// Get returns a copy of the named trigger.
func (r *Registry) Get(ctx context.Context, guildID, name string) (*trigger.Trigger, error) {
	g, err := r.lock(ctx, guildID)
	if err != nil {
		return nil, err
	}
	defer g.mu.Unlock()

	t, ok := g.triggers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", trigger.ErrNotFound, name)
	}
	return t.Clone(), nil
}

// List returns copies of the guild's triggers in insertion order. The
// result is a snapshot: later mutations do not affect it.
func (r *Registry) List(ctx context.Context, guildID string) ([]*trigger.Trigger, error) {
	g, err := r.lock(ctx, guildID)
	if err != nil {
		return nil, err
	}
	defer g.mu.Unlock()

	out := make([]*trigger.Trigger, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.triggers[name].Clone())
	}
	return out, nil
}

// Update applies fn to a copy of the named trigger and stores the result.
// When fn or the store fails the trigger is left unchanged. The name
// cannot be changed.
func (r *Registry) Update(ctx context.Context, guildID, name string, fn func(*trigger.Trigger) error) (*trigger.Trigger, error) {
	g, err := r.lock(ctx, guildID)
	if err != nil {
		return nil, err
	}
	defer g.mu.Unlock()

	cur, ok := g.triggers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", trigger.ErrNotFound, name)
	}

	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.Name != name {
		return nil, fmt.Errorf("trigger names cannot be changed")
	}
	if next.Count < cur.Count {
		next.Count = cur.Count
	}
	if next.Pattern != cur.Pattern {
		if err := matcher.Validate(next.Pattern); err != nil {
			return nil, err
		}
	}

	if err := r.store.PutTrigger(ctx, guildID, g.positions[name], next); err != nil {
		return nil, storageErr("saving trigger", err)
	}
	g.triggers[name] = next
	return next.Clone(), nil
}

// Fire records that the named trigger fires for m at now. It checks the
// cooldown and, when ready, commits it and increments the fire count in
// one step under the guild lock. fired is false when the trigger is
// cooling down. A trigger removed since the caller's snapshot returns an
// error wrapping trigger.ErrNotFound.
func (r *Registry) Fire(ctx context.Context, guildID, name string, m *trigger.Message, now time.Time) (t *trigger.Trigger, fired bool, err error) {
	g, err := r.lock(ctx, guildID)
	if err != nil {
		return nil, false, err
	}
	defer g.mu.Unlock()

	cur, ok := g.triggers[name]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", trigger.ErrNotFound, name)
	}
	if !cur.Cooldown.Ready(m, now) {
		return cur.Clone(), false, nil
	}

	next := cur.Clone()
	next.Cooldown.Commit(m, now)
	next.Count++
	if err := r.store.PutTrigger(ctx, guildID, g.positions[name], next); err != nil {
		return nil, false, storageErr("saving fire", err)
	}
	g.triggers[name] = next
	return next.Clone(), true, nil
}

// Settings returns the guild's settings.
func (r *Registry) Settings(ctx context.Context, guildID string) (trigger.Settings, error) {
	g, err := r.lock(ctx, guildID)
	if err != nil {
		return trigger.DefaultSettings(), err
	}
	defer g.mu.Unlock()
	return g.settings, nil
}

// UpdateSettings applies fn to a copy of the guild's settings and stores
// the result.
func (r *Registry) UpdateSettings(ctx context.Context, guildID string, fn func(*trigger.Settings)) (trigger.Settings, error) {
	g, err := r.lock(ctx, guildID)
	if err != nil {
		return trigger.DefaultSettings(), err
	}
	defer g.mu.Unlock()

	next := g.settings
	fn(&next)
	if err := r.store.PutSettings(ctx, guildID, next); err != nil {
		return g.settings, storageErr("saving settings", err)
	}
	g.settings = next
	return next, nil
}

// Guilds lists every guild known to the store.
func (r *Registry) Guilds(ctx context.Context) ([]string, error) {
	ids, err := r.store.Guilds(ctx)
	if err != nil {
		return nil, storageErr("listing guilds", err)
	}
	return ids, nil
}

// PruneCooldowns drops expired per-channel and per-author cooldown
// entries of every loaded guild and reports how many were removed.
func (r *Registry) PruneCooldowns(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.guilds))
	for id := range r.guilds {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	total := 0
	var firstErr error
	for _, id := range ids {
		g, err := r.lock(ctx, id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, name := range g.order {
			cur := g.triggers[name]
			if cur.Cooldown == nil || len(cur.Cooldown.LastByScope) == 0 {
				continue
			}
			next := cur.Clone()
			n := next.Cooldown.Prune(now)
			if n == 0 {
				continue
			}
			if err := r.store.PutTrigger(ctx, id, g.positions[name], next); err != nil {
				if firstErr == nil {
					firstErr = storageErr("saving pruned cooldown", err)
				}
				continue
			}
			g.triggers[name] = next
			total += n
		}
		g.mu.Unlock()
	}
	return total, firstErr
}

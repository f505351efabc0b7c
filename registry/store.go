package registry

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/gobridge/retrigger/trigger"
)

// Guild is everything persisted for one guild.
type Guild struct {
	// Triggers are in insertion order.
	Triggers []*trigger.Trigger
	// Positions parallels Triggers.
	Positions []int
	Settings  trigger.Settings
}

// Store persists triggers and settings per guild.
type Store interface {
	// LoadGuild returns the guild's triggers ordered by position. A guild
	// with nothing stored yields an empty Guild with default settings.
	LoadGuild(_ context.Context, guildID string) (*Guild, error)
	// PutTrigger creates or replaces the trigger named t.Name.
	PutTrigger(_ context.Context, guildID string, position int, t *trigger.Trigger) error
	// DeleteTrigger returns trigger.ErrNotFound for unknown names.
	DeleteTrigger(_ context.Context, guildID, name string) error
	PutSettings(_ context.Context, guildID string, s trigger.Settings) error
	// Guilds lists guilds with at least one stored trigger or settings.
	Guilds(context.Context) ([]string, error)
}

type memoryEntry struct {
	position int
	data     []byte
}

type memoryGuild struct {
	triggers map[string]memoryEntry
	settings []byte
}

// MemoryStore implements Store in process memory. Records are kept
// encoded so callers never share state with the store.
type MemoryStore struct {
	mu     sync.Mutex
	guilds map[string]*memoryGuild
}

// NewMemoryStore constructs an empty *MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{guilds: make(map[string]*memoryGuild)}
}

func (s *MemoryStore) guild(id string) *memoryGuild {
	g, ok := s.guilds[id]
	if !ok {
		g = &memoryGuild{triggers: make(map[string]memoryEntry)}
		s.guilds[id] = g
	}
	return g
}

func (s *MemoryStore) LoadGuild(_ context.Context, guildID string) (*Guild, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &Guild{Settings: trigger.DefaultSettings()}
	g, ok := s.guilds[guildID]
	if !ok {
		return out, nil
	}

	entries := make([]memoryEntry, 0, len(g.triggers))
	for _, e := range g.triggers {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].position < entries[j].position })

	for _, e := range entries {
		var t trigger.Trigger
		if err := json.Unmarshal(e.data, &t); err != nil {
			return nil, err
		}
		out.Triggers = append(out.Triggers, &t)
		out.Positions = append(out.Positions, e.position)
	}
	if g.settings != nil {
		if err := json.Unmarshal(g.settings, &out.Settings); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *MemoryStore) PutTrigger(_ context.Context, guildID string, position int, t *trigger.Trigger) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guild(guildID).triggers[t.Name] = memoryEntry{position: position, data: data}
	return nil
}

func (s *MemoryStore) DeleteTrigger(_ context.Context, guildID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guilds[guildID]
	if !ok {
		return trigger.ErrNotFound
	}
	if _, ok := g.triggers[name]; !ok {
		return trigger.ErrNotFound
	}
	delete(g.triggers, name)
	return nil
}

func (s *MemoryStore) PutSettings(_ context.Context, guildID string, st trigger.Settings) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guild(guildID).settings = data
	return nil
}

func (s *MemoryStore) Guilds(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.guilds))
	for id := range s.guilds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

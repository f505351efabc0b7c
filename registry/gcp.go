package registry

import (
	"context"
	"encoding/json"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	"github.com/gobridge/retrigger/trigger"
)

type storedTrigger struct {
	Name      string    `datastore:"Name"`
	Position  int       `datastore:"Position"`
	Data      []byte    `datastore:"Data,noindex"`
	UpdatedAt time.Time `datastore:"UpdatedAt,noindex"`
}

type storedSettings struct {
	Data      []byte    `datastore:"Data,noindex"`
	UpdatedAt time.Time `datastore:"UpdatedAt,noindex"`
}

// GCPStore implements Store on Google Cloud Datastore. Triggers and
// settings are children of a per-guild ancestor key.
type GCPStore struct {
	ds           *datastore.Client
	guildKind    string
	triggerKind  string
	settingsKind string
}

// NewGCPStore constructs a new *GCPStore.
func NewGCPStore(ds *datastore.Client) *GCPStore {
	return &GCPStore{
		ds:           ds,
		guildKind:    "Guild",
		triggerKind:  "Trigger",
		settingsKind: "GuildSettings",
	}
}

func (s *GCPStore) LoadGuild(ctx context.Context, guildID string) (*Guild, error) {
	q := datastore.NewQuery(s.triggerKind).
		Ancestor(s.guildKey(guildID)).
		Order("Position")

	var rows []storedTrigger
	if _, err := s.ds.GetAll(ctx, q, &rows); err != nil {
		return nil, err
	}

	out := &Guild{Settings: trigger.DefaultSettings()}
	for _, row := range rows {
		var t trigger.Trigger
		if err := json.Unmarshal(row.Data, &t); err != nil {
			return nil, err
		}
		out.Triggers = append(out.Triggers, &t)
		out.Positions = append(out.Positions, row.Position)
	}

	var st storedSettings
	err := s.ds.Get(ctx, s.settingsKey(guildID), &st)
	switch err {
	case nil:
		if err := json.Unmarshal(st.Data, &out.Settings); err != nil {
			return nil, err
		}
	case datastore.ErrNoSuchEntity:
	default:
		return nil, err
	}
	return out, nil
}

func (s *GCPStore) PutTrigger(ctx context.Context, guildID string, position int, t *trigger.Trigger) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = s.ds.Put(ctx, s.triggerKey(guildID, t.Name), &storedTrigger{
		Name:      t.Name,
		Position:  position,
		Data:      data,
		UpdatedAt: time.Now(),
	})
	return err
}

func (s *GCPStore) DeleteTrigger(ctx context.Context, guildID, name string) error {
	key := s.triggerKey(guildID, name)
	var row storedTrigger
	if err := s.ds.Get(ctx, key, &row); err == datastore.ErrNoSuchEntity {
		return trigger.ErrNotFound
	} else if err != nil {
		return err
	}
	return s.ds.Delete(ctx, key)
}

func (s *GCPStore) PutSettings(ctx context.Context, guildID string, st trigger.Settings) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.ds.Put(ctx, s.settingsKey(guildID), &storedSettings{Data: data, UpdatedAt: time.Now()})
	return err
}

func (s *GCPStore) Guilds(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, kind := range []string{s.triggerKind, s.settingsKind} {
		it := s.ds.Run(ctx, datastore.NewQuery(kind).KeysOnly())
		for {
			key, err := it.Next(nil)
			if err == iterator.Done {
				break
			}
			if err != nil {
				return nil, err
			}
			if key.Parent == nil || seen[key.Parent.Name] {
				continue
			}
			seen[key.Parent.Name] = true
			ids = append(ids, key.Parent.Name)
		}
	}
	return ids, nil
}

func (s *GCPStore) guildKey(guildID string) *datastore.Key {
	return datastore.NameKey(s.guildKind, guildID, nil)
}

func (s *GCPStore) triggerKey(guildID, name string) *datastore.Key {
	return datastore.NameKey(s.triggerKind, name, s.guildKey(guildID))
}

func (s *GCPStore) settingsKey(guildID string) *datastore.Key {
	return datastore.NameKey(s.settingsKind, "settings", s.guildKey(guildID))
}

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/gobridge/retrigger/trigger"
)

// TriggerRow is the SQL shape of a stored trigger. The record itself is
// kept as JSON in Data.
type TriggerRow struct {
	GuildID   string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"primaryKey;size:128"`
	Position  int    `gorm:"index"`
	Data      string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table name.
func (TriggerRow) TableName() string { return "retrigger_triggers" }

// SettingsRow is the SQL shape of a guild's settings.
type SettingsRow struct {
	GuildID   string `gorm:"primaryKey;size:64"`
	Data      string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName pins the table name.
func (SettingsRow) TableName() string { return "retrigger_settings" }

// OpenSQL opens a database for SQLStore. driver is "postgres" or "sqlite".
func OpenSQL(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// SQLStore implements Store with gorm.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore migrates the schema and returns a *SQLStore.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&TriggerRow{}, &SettingsRow{}); err != nil {
		return nil, fmt.Errorf("migrating retrigger tables: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) LoadGuild(ctx context.Context, guildID string) (*Guild, error) {
	var rows []TriggerRow
	if err := s.db.WithContext(ctx).
		Where("guild_id = ?", guildID).
		Order("position").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	out := &Guild{Settings: trigger.DefaultSettings()}
	for _, row := range rows {
		var t trigger.Trigger
		if err := json.Unmarshal([]byte(row.Data), &t); err != nil {
			return nil, fmt.Errorf("decoding trigger %q: %w", row.Name, err)
		}
		out.Triggers = append(out.Triggers, &t)
		out.Positions = append(out.Positions, row.Position)
	}

	var settings []SettingsRow
	if err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).Limit(1).Find(&settings).Error; err != nil {
		return nil, err
	}
	if len(settings) == 1 {
		if err := json.Unmarshal([]byte(settings[0].Data), &out.Settings); err != nil {
			return nil, fmt.Errorf("decoding settings: %w", err)
		}
	}
	return out, nil
}

func (s *SQLStore) PutTrigger(ctx context.Context, guildID string, position int, t *trigger.Trigger) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	row := TriggerRow{
		GuildID:  guildID,
		Name:     t.Name,
		Position: position,
		Data:     string(data),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "guild_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"position", "data", "updated_at"}),
		}).
		Create(&row).Error
}

func (s *SQLStore) DeleteTrigger(ctx context.Context, guildID, name string) error {
	res := s.db.WithContext(ctx).
		Where("guild_id = ? AND name = ?", guildID, name).
		Delete(&TriggerRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return trigger.ErrNotFound
	}
	return nil
}

func (s *SQLStore) PutSettings(ctx context.Context, guildID string, st trigger.Settings) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	row := SettingsRow{GuildID: guildID, Data: string(data)}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "guild_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&row).Error
}

func (s *SQLStore) Guilds(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Raw(
		"SELECT guild_id FROM retrigger_triggers UNION SELECT guild_id FROM retrigger_settings ORDER BY guild_id",
	).Scan(&ids).Error
	return ids, err
}

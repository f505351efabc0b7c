// Package config loads the bot configuration with viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the whole configuration of a retrigger process.
type Config struct {
	Host        HostConfig        `mapstructure:"host"`
	Matcher     MatcherConfig     `mapstructure:"matcher"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Await       AwaitConfig       `mapstructure:"await"`
	Store       StoreConfig       `mapstructure:"store"`
	Files       FilesConfig       `mapstructure:"files"`
	Images      ImagesConfig      `mapstructure:"images"`
	Twitter     TwitterConfig     `mapstructure:"twitter"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Log         LogConfig         `mapstructure:"log"`
	Trace       TraceConfig       `mapstructure:"trace"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

type HostConfig struct {
	Platform      string `mapstructure:"platform"` // discord, slack
	Token         string `mapstructure:"token"`
	CommandPrefix string `mapstructure:"command_prefix"`
	DevMode       bool   `mapstructure:"dev_mode"`
}

type MatcherConfig struct {
	Workers           int           `mapstructure:"workers"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxTasksPerWorker int           `mapstructure:"max_tasks_per_worker"`
}

type EngineConfig struct {
	MaxConcurrentGuilds int           `mapstructure:"max_concurrent_guilds"`
	ProvenanceWindow    time.Duration `mapstructure:"provenance_window"`
}

type AwaitConfig struct {
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	UploadTimeout  time.Duration `mapstructure:"upload_timeout"`
}

type StoreConfig struct {
	Driver    string `mapstructure:"driver"` // memory, datastore, postgres, sqlite
	DSN       string `mapstructure:"dsn"`
	ProjectID string `mapstructure:"project_id"`
}

type FilesConfig struct {
	Dir string `mapstructure:"dir"`
}

type ImagesConfig struct {
	Resize    bool `mapstructure:"resize"`
	MaxWidth  int  `mapstructure:"max_width"`
	MaxHeight int  `mapstructure:"max_height"`
}

// Follow seeds the tweet relay with an account to post into a channel.
type Follow struct {
	ScreenName string `mapstructure:"screen_name"`
	Channel    string `mapstructure:"channel"`
}

type TwitterConfig struct {
	ConsumerKey       string `mapstructure:"consumer_key"`
	ConsumerSecret    string `mapstructure:"consumer_secret"`
	AccessToken       string `mapstructure:"access_token"`
	AccessTokenSecret string `mapstructure:"access_token_secret"`
	ErrorChannel      string `mapstructure:"error_channel"`
	PostsPerMinute    int    `mapstructure:"posts_per_minute"`
	// AccountsFile keeps accounts followed at runtime across restarts.
	AccountsFile string   `mapstructure:"accounts_file"`
	Follows      []Follow `mapstructure:"follows"`
}

// Enabled reports whether every credential is set.
func (t TwitterConfig) Enabled() bool {
	return t.ConsumerKey != "" && t.ConsumerSecret != "" && t.AccessToken != "" && t.AccessTokenSecret != ""
}

type AdminConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the api
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json, text
	Output     string `mapstructure:"output"` // stdout, file, both
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`    // MB
	MaxAge     int    `mapstructure:"max_age"`     // days
	MaxBackups int    `mapstructure:"max_backups"` // number of backup files
	Compress   bool   `mapstructure:"compress"`
}

type TraceConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

type MaintenanceConfig struct {
	Schedule string `mapstructure:"schedule"` // cron spec
}

// Default returns the configuration used for every key left unset.
func Default() *Config {
	return &Config{
		Host: HostConfig{
			Platform:      "discord",
			CommandPrefix: "!",
		},
		Matcher: MatcherConfig{
			Workers:           4,
			Timeout:           2 * time.Second,
			MaxTasksPerWorker: 1000,
		},
		Engine: EngineConfig{
			MaxConcurrentGuilds: 16,
			ProvenanceWindow:    time.Minute,
		},
		Await: AwaitConfig{
			ConfirmTimeout: 15 * time.Second,
			UploadTimeout:  60 * time.Second,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Files: FilesConfig{
			Dir: "data/files",
		},
		Images: ImagesConfig{
			MaxWidth:  1024,
			MaxHeight: 1024,
		},
		Twitter: TwitterConfig{
			PostsPerMinute: 30,
			AccountsFile:   "data/tweets.json",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePath:   "logs/retrigger.log",
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 5,
		},
		Maintenance: MaintenanceConfig{
			Schedule: "@every 10m",
		},
	}
}

// Setup points v at the config file and the RETRIGGER_ environment.
// An explicit file wins over $RETRIGGER_CONFIG, which wins over
// ./config.yml.
func Setup(v *viper.Viper, file string) {
	if file == "" {
		file = os.Getenv("RETRIGGER_CONFIG")
	}
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("RETRIGGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindDefaults(v, Default())
}

// bindDefaults registers every key so AutomaticEnv can override keys
// missing from the file.
func bindDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("host.platform", d.Host.Platform)
	v.SetDefault("host.token", d.Host.Token)
	v.SetDefault("host.command_prefix", d.Host.CommandPrefix)
	v.SetDefault("host.dev_mode", d.Host.DevMode)
	v.SetDefault("matcher.workers", d.Matcher.Workers)
	v.SetDefault("matcher.timeout", d.Matcher.Timeout)
	v.SetDefault("matcher.max_tasks_per_worker", d.Matcher.MaxTasksPerWorker)
	v.SetDefault("engine.max_concurrent_guilds", d.Engine.MaxConcurrentGuilds)
	v.SetDefault("engine.provenance_window", d.Engine.ProvenanceWindow)
	v.SetDefault("await.confirm_timeout", d.Await.ConfirmTimeout)
	v.SetDefault("await.upload_timeout", d.Await.UploadTimeout)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.project_id", d.Store.ProjectID)
	v.SetDefault("files.dir", d.Files.Dir)
	v.SetDefault("images.resize", d.Images.Resize)
	v.SetDefault("images.max_width", d.Images.MaxWidth)
	v.SetDefault("images.max_height", d.Images.MaxHeight)
	v.SetDefault("twitter.consumer_key", d.Twitter.ConsumerKey)
	v.SetDefault("twitter.consumer_secret", d.Twitter.ConsumerSecret)
	v.SetDefault("twitter.access_token", d.Twitter.AccessToken)
	v.SetDefault("twitter.access_token_secret", d.Twitter.AccessTokenSecret)
	v.SetDefault("twitter.error_channel", d.Twitter.ErrorChannel)
	v.SetDefault("twitter.posts_per_minute", d.Twitter.PostsPerMinute)
	v.SetDefault("twitter.accounts_file", d.Twitter.AccountsFile)
	v.SetDefault("admin.addr", d.Admin.Addr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("log.file_path", d.Log.FilePath)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("trace.project_id", d.Trace.ProjectID)
	v.SetDefault("maintenance.schedule", d.Maintenance.Schedule)
}

// Load reads the configuration. A missing config file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %v", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings Load cannot default.
func (c *Config) Validate() error {
	switch c.Host.Platform {
	case "discord", "slack":
	default:
		return fmt.Errorf("unknown host platform %q", c.Host.Platform)
	}
	if c.Host.Token == "" && !c.Host.DevMode {
		return errors.New("host token must be set, use RETRIGGER_HOST_TOKEN")
	}
	switch c.Store.Driver {
	case "memory":
	case "datastore":
		if c.Store.ProjectID == "" {
			return errors.New("store.project_id is required for the datastore driver")
		}
	case "postgres", "sqlite":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the %s driver", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}

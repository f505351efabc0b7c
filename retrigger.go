// Copyright 2016 Florin Pățan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command retrigger
//
// This is a chat bot that answers messages matching per-guild regular
// expressions. It runs on Discord or Slack.
//
// To run this you need to set the ` RETRIGGER_HOST_TOKEN ` environment
// variable with the bot token, or write a config.yml.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"cloud.google.com/go/trace"
	"github.com/ChimeraCoder/anaconda"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/gobridge/retrigger/admin"
	"github.com/gobridge/retrigger/bot"
	"github.com/gobridge/retrigger/commands"
	"github.com/gobridge/retrigger/config"
	"github.com/gobridge/retrigger/covfefe"
	"github.com/gobridge/retrigger/discord"
	"github.com/gobridge/retrigger/dispatch"
	"github.com/gobridge/retrigger/engine"
	"github.com/gobridge/retrigger/files"
	"github.com/gobridge/retrigger/images"
	"github.com/gobridge/retrigger/maintenance"
	"github.com/gobridge/retrigger/matcher"
	"github.com/gobridge/retrigger/registry"
	"github.com/gobridge/retrigger/slackbot"
	"github.com/gobridge/retrigger/tweets"
)

var botVersion = "HEAD"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "retrigger",
	Short: "Regex triggered responses for chat guilds",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the chat host and serve triggers",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		config.Setup(v, cfgFile)
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		if err := config.InitLogger(cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, logrus.StandardLogger())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("My version is: %s\n", botVersion)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yml)")
	rootCmd.AddCommand(runCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// chatHost is a platform adapter.
type chatHost interface {
	dispatch.Host
	commands.Host
}

func openStore(ctx context.Context, c config.StoreConfig) (registry.Store, error) {
	switch c.Driver {
	case "datastore":
		ds, err := datastore.NewClient(ctx, c.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("creating datastore client: %v", err)
		}
		return registry.NewGCPStore(ds), nil
	case "postgres", "sqlite":
		db, err := registry.OpenSQL(c.Driver, c.DSN)
		if err != nil {
			return nil, err
		}
		s, err := registry.NewSQLStore(db)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return registry.NewMemoryStore(), nil
	}
}

func run(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) error {
	var traceClient *trace.Client
	if cfg.Trace.ProjectID != "" {
		tc, err := trace.NewClient(ctx, cfg.Trace.ProjectID)
		if err != nil {
			return fmt.Errorf("creating trace client: %v", err)
		}
		traceClient = tc
	}

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	reg := registry.New(store, log)

	httpClient := &http.Client{Timeout: 30 * time.Second}

	var (
		host    chatHost
		runHost func(ctx context.Context, b *bot.Bot) error
		fileCli files.Client = httpClient
		modlog  func(guildID string) string
		engOpts = []engine.Option{engine.WithCommandPrefix(cfg.Host.CommandPrefix), engine.WithTraceClient(traceClient)}
	)
	switch cfg.Host.Platform {
	case "slack":
		s := slackbot.New(cfg.Host.Token, log)
		if err := s.Init(ctx); err != nil {
			return err
		}
		host = s
		runHost = func(ctx context.Context, b *bot.Bot) error { return s.Run(ctx, b) }
		fileCli = s.FileClient(httpClient)
		modlog = func(string) string { return "" }
		engOpts = append(engOpts, engine.WithBotID(s.BotID()))
	default:
		d, err := discord.New(cfg.Host.Token, log)
		if err != nil {
			return err
		}
		host = d
		runHost = func(ctx context.Context, b *bot.Bot) error { return d.Run(ctx, b) }
		modlog = d.ModlogChannel
	}

	fileStore := files.New(afero.NewOsFs(), cfg.Files.Dir, fileCli)
	router := commands.NewRouter(cfg.Host.CommandPrefix, host, log)
	waiter := commands.NewWaiter()

	pool := matcher.NewPool(matcher.Config{
		Workers:           cfg.Matcher.Workers,
		Timeout:           cfg.Matcher.Timeout,
		MaxTasksPerWorker: cfg.Matcher.MaxTasksPerWorker,
	}, log)
	defer pool.Close()

	// The dispatcher reports issued commands to the engine built after it.
	var eng *engine.Engine
	dispOpts := []dispatch.Option{
		dispatch.WithModlog(dispatch.NewChannelModlog(host, modlog)),
		dispatch.WithInvoker(router),
		dispatch.WithInvokeHook(func(inv dispatch.Invocation) { eng.RecordInvocation(inv) }),
		dispatch.WithMaxDimensions(cfg.Images.MaxWidth, cfg.Images.MaxHeight),
	}
	if cfg.Images.Resize {
		dispOpts = append(dispOpts, dispatch.WithResizer(images.Resizer{}))
	}
	disp := dispatch.New(host, fileStore, log, dispOpts...)

	eng = engine.New(engine.Config{
		MaxConcurrentGuilds: cfg.Engine.MaxConcurrentGuilds,
		ProvenanceWindow:    cfg.Engine.ProvenanceWindow,
	}, reg, pool, disp, log, engOpts...)
	defer eng.Wait()

	commands.NewReTrigger(reg, host, router, fileStore, disp, waiter, commands.Config{
		ConfirmTimeout: cfg.Await.ConfirmTimeout,
		UploadTimeout:  cfg.Await.UploadTimeout,
		ResizeEnabled:  cfg.Images.Resize,
	}, log)
	covfefe.Register(router)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Twitter.Enabled() {
		relay, err := newRelay(ctx, cfg.Twitter, host, log)
		if err != nil {
			return err
		}
		relay.Register(router, host)
		g.Go(func() error {
			if err := relay.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if cfg.Admin.Addr != "" {
		srv := admin.New(reg, log)
		g.Go(func() error { return srv.ListenAndServe(ctx, cfg.Admin.Addr) })
	}

	m := maintenance.New(time.Minute, traceClient, log, maintenance.Task{
		Name: "engine",
		Run: func(ctx context.Context) error {
			eng.Maintain(ctx)
			return nil
		},
	})
	g.Go(func() error { return m.Schedule(ctx, cfg.Maintenance.Schedule) })

	b := bot.NewBot(router, waiter, eng, traceClient, cfg.Host.DevMode, log)
	g.Go(func() error { return runHost(ctx, b) })

	log.WithFields(logrus.Fields{
		"platform": cfg.Host.Platform,
		"store":    cfg.Store.Driver,
		"version":  botVersion,
	}).Info("retrigger started")
	return g.Wait()
}

func newRelay(ctx context.Context, c config.TwitterConfig, post tweets.Poster, log logrus.FieldLogger) (*tweets.Relay, error) {
	anaconda.SetConsumerKey(c.ConsumerKey)
	anaconda.SetConsumerSecret(c.ConsumerSecret)
	api := anaconda.NewTwitterApi(c.AccessToken, c.AccessTokenSecret)

	perSecond := rate.Limit(float64(c.PostsPerMinute) / 60)
	if c.PostsPerMinute <= 0 {
		perSecond = rate.Inf
	}
	relay := tweets.New(api, post, perSecond, log)
	relay.SetErrorChannel(c.ErrorChannel)
	if c.AccountsFile != "" {
		if err := relay.Load(ctx, tweets.NewFileStore(afero.NewOsFs(), c.AccountsFile)); err != nil {
			return nil, fmt.Errorf("loading followed accounts: %v", err)
		}
	}
	for _, f := range c.Follows {
		if _, err := relay.Follow(ctx, f.ScreenName, f.Channel); err != nil {
			log.WithField("account", f.ScreenName).Warnf("could not follow: %v", err)
		}
	}
	return relay, nil
}

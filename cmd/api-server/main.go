package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/go-co-op/gocron"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/faciam-dev/gpdb/internal/api/handler"
	"github.com/faciam-dev/gpdb/internal/config"
	"github.com/faciam-dev/gpdb/internal/events"
	"github.com/faciam-dev/gpdb/internal/logger"
	"github.com/faciam-dev/gpdb/internal/pluginloader"
	"github.com/faciam-dev/gpdb/internal/server"
	"github.com/faciam-dev/gpdb/pkg/capability"
	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/filter"
	"github.com/faciam-dev/gpdb/pkg/formelement"
	"github.com/faciam-dev/gpdb/pkg/hooks"
	"github.com/faciam-dev/gpdb/pkg/i18n"
	"github.com/faciam-dev/gpdb/pkg/record"
	"github.com/faciam-dev/gpdb/pkg/session"
	"github.com/faciam-dev/gpdb/pkg/settings"
	"github.com/faciam-dev/gpdb/pkg/util"
)

func main() {
	cfgPath := flag.String("config", util.GetEnv("PDB_CONFIG", ""), "YAML configuration file")
	openapi := flag.String("openapi", "", "write OpenAPI JSON and exit")
	flag.Parse()

	logger.Set(logger.FromEnv())

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.L.Error("load config", "err", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	dialect := util.DialectFromDriver(cfg.Driver)
	if cfg.DSN != "" {
		db, err = util.Connect(ctx, cfg.Driver, cfg.DSN, 10*time.Second)
		if err != nil {
			logger.L.Error("db open", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := config.CheckPrefix(ctx, db, dialect, cfg.TablePrefix); err != nil {
			logger.L.Error("prefix check", "err", err)
			os.Exit(1)
		}
	}

	var store settings.Store = settings.Map{}
	if cfg.SettingsFile != "" {
		fs, err := settings.NewFileStore(cfg.SettingsFile, logger.L)
		if err != nil {
			logger.L.Error("load settings", "err", err)
			os.Exit(1)
		}
		if err := fs.Watch(ctx); err != nil {
			logger.L.Warn("watch settings", "err", err)
		}
		store = fs
	}
	var tr i18n.Translator = i18n.Identity{}
	if cfg.I18nFile != "" {
		cat, err := i18n.LoadCatalog(cfg.I18nFile)
		if err != nil {
			logger.L.Error("load translations", "err", err)
			os.Exit(1)
		}
		tr = cat
	}

	hookSet := hooks.New()
	renderer := formelement.New(tr, store)
	zl, err := zap.NewProduction()
	if err != nil {
		logger.L.Error("zap logger", "err", err)
		os.Exit(1)
	}
	defer zl.Sync()
	if n, err := pluginloader.LoadAll(cfg.PluginDir, &pluginloader.Host{Renderer: renderer, Hooks: hookSet}, zl.Sugar()); err != nil {
		logger.L.Error("load plugins", "err", err)
		os.Exit(1)
	} else if n > 0 {
		logger.L.Info("plugins loaded", "count", n)
	}

	reg := fielddef.NewRegistry(&fielddef.SQLSource{DB: db, Dialect: dialect, Driver: cfg.Driver, TablePrefix: cfg.TablePrefix}, hookSet)

	var style *filter.RegexpStyle
	if db != nil {
		if s, err := filter.DetectRegexpStyle(ctx, db, cfg.Driver); err != nil {
			logger.L.Warn("detect regexp style", "err", err)
		} else {
			style = &s
		}
	}

	var sessions session.Store
	sched := gocron.NewScheduler(time.UTC)
	switch cfg.Session {
	case "redis":
		rs, err := session.NewRedis(cfg.RedisURL, "")
		if err != nil {
			logger.L.Error("redis session store", "err", err)
			os.Exit(1)
		}
		sessions = rs
	default:
		mem := session.NewMemory()
		if _, err := sched.Every(1).Minute().Do(func() {
			if n := mem.Sweep(); n > 0 {
				logger.L.Debug("session sweep", "removed", n)
			}
		}); err != nil {
			logger.L.Error("schedule session sweep", "err", err)
		}
		sessions = mem
	}
	sched.StartAsync()
	defer sched.Stop()

	evtConf, err := events.LoadConfig(cfg.EventsConfig)
	if err != nil {
		logger.L.Error("load events configuration", "err", err)
		os.Exit(1)
	}
	dispatcher, err := events.FromConfig(evtConf, &events.SQLDLQ{DB: db, Dialect: dialect, TablePrefix: cfg.TablePrefix})
	if err != nil {
		logger.L.Error("event sinks", "err", err)
		os.Exit(1)
	}
	defer dispatcher.Wait()

	caps, err := capability.NewCasbin()
	if err != nil {
		logger.L.Error("casbin enforcer", "err", err)
		os.Exit(1)
	}
	pipe := record.NewPipeline(store, caps)
	writer := &record.Writer{
		DB:          db,
		Dialect:     dialect,
		Driver:      cfg.Driver,
		TablePrefix: cfg.TablePrefix,
		Registry:    reg,
		Pipeline:    pipe,
		Validator:   record.NewValidator(tr, renderer.Captcha),
		Hooks:       hookSet,
		Events:      dispatcher,
	}
	env := &handler.Env{
		DB:          db,
		Dialect:     dialect,
		TablePrefix: cfg.TablePrefix,
		Registry:    reg,
		Sessions:    sessions,
		Settings:    store,
		Hooks:       hookSet,
		Translator:  tr,
		Renderer:    renderer,
		Writer:      writer,
		Capability:  caps,
		Style:       style,
		Lists:       cfg.List,
	}
	api, h := server.New(env, server.Options{AllowedOrigins: cfg.AllowedOrigins, JWTSecret: cfg.JWTSecret})

	if *openapi != "" {
		data, err := json.MarshalIndent(api.OpenAPI(), "", "  ")
		if err != nil {
			logger.L.Error("marshal openapi", "err", err)
			os.Exit(1)
		}
		if err := os.WriteFile(filepath.Clean(*openapi), data, 0o600); err != nil {
			logger.L.Error("write openapi", "err", err)
			os.Exit(1)
		}
		return
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	logger.L.Info("listening", "addr", cfg.Addr, "table_prefix", cfg.TablePrefix)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("server error", "err", err)
		os.Exit(1)
	}
}

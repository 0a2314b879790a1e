package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"socialmetrics/internal/api"
	"socialmetrics/internal/cmdlog"
	"socialmetrics/internal/config"
	"socialmetrics/internal/jobs"
	"socialmetrics/internal/logging"
	"socialmetrics/internal/metrics"
	"socialmetrics/internal/model"
	"socialmetrics/internal/profiles"
	"socialmetrics/internal/store/sqlitestore"
	"socialmetrics/internal/theme"
	"socialmetrics/internal/xclient"
)

const defaultConfigPath = "./socialmetrics.yaml"

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	var err error
	switch cmd {
	case "init":
		err = cmdlog.Run(cmd, cmdInit)
	case "serve":
		err = cmdlog.Run(cmd, cmdServe)
	case "fetch":
		err = cmdlog.Run(cmd, cmdFetch)
	case "history":
		err = cmdlog.Run(cmd, cmdHistory)
	case "refresh":
		err = cmdlog.Run(cmd, cmdRefresh)
	default:
		printHelp()
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: socialmetrics <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./socialmetrics.yaml")
	fmt.Println("  serve       Run the query API (and the tracked-profile refresh when configured)")
	fmt.Println("  fetch       Print the live view of a profile")
	fmt.Println("  history     Print stored daily stats of a profile")
	fmt.Println("  refresh     Snapshot all tracked profiles once, or on schedule with -daemon")
}

// loadConfig reads path; a missing file means defaults plus environment.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		cfg.ResolveEnv()
		logging.Warn("config_missing", map[string]any{"path": path})
		err = nil
	}
	if err != nil {
		return cfg, err
	}
	logging.SetLevel(cfg.Log.Level)
	if cfg.Upstream.BearerToken == "" {
		logging.Warn("missing X_BEARER_TOKEN; upstream calls will fail", nil)
	}
	return cfg, nil
}

type app struct {
	cfg     config.Config
	db      *sqlitestore.DB
	service *profiles.Service
}

func openApp(cfgPath string) (*app, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	db, err := sqlitestore.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	client := xclient.NewHTTPClient(cfg.Upstream, cfg.Cache.RecentPosts)
	svc := profiles.New(db, client, profiles.Options{
		FetchTimeout: cfg.Cache.FetchTimeout,
		HistoryDays:  cfg.Cache.HistoryDays,
	})
	return &app{cfg: cfg, db: db, service: svc}, nil
}

func (a *app) refresher() *jobs.Refresh {
	return &jobs.Refresh{
		Service:     a.service,
		Cursors:     a.db,
		Profiles:    a.cfg.Refresh.Profiles,
		Parallelism: a.cfg.Refresh.Parallelism,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdInit() error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", defaultConfigPath, "path to write config")
	_ = fs.Parse(os.Args[2:])
	if err := config.Save(*path, config.Default()); err != nil {
		return err
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
	return nil
}

func cmdServe() error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	addr := fs.String("addr", "", "listen address (overrides config)")
	_ = fs.Parse(os.Args[2:])
	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.db.Close()
	if *addr != "" {
		a.cfg.Server.Addr = *addr
	}

	ctx, stop := signalContext()
	defer stop()
	router := api.NewRouter(&api.Handler{
		Queries: a.service,
		Store:   a.db,
		Auth:    api.NewStaticKeys(a.cfg.Server.APIKeys),
	})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return api.Serve(gctx, a.cfg.Server.Addr, router) })
	if len(a.cfg.Refresh.Profiles) > 0 {
		g.Go(func() error {
			err := jobs.Schedule(gctx, a.cfg.Refresh.Schedule, a.refresher(), 0)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func cmdFetch() error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	force := fs.Bool("force", false, "skip today's cached snapshot")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: socialmetrics fetch [-force] <username>")
	}
	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.db.Close()
	ctx, stop := signalContext()
	defer stop()
	body, err := a.service.Live(ctx, fs.Arg(0), *force)
	if err != nil {
		return err
	}
	return printJSON(body)
}

func cmdHistory() error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	fromStr := fs.String("from", "", "first day, YYYY-MM-DD")
	toStr := fs.String("to", "", "last day, YYYY-MM-DD (default today)")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: socialmetrics history [-from D] [-to D] <username>")
	}
	from, err := optionalDate(*fromStr)
	if err != nil {
		return err
	}
	to, err := optionalDate(*toStr)
	if err != nil {
		return err
	}
	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.db.Close()
	body, err := a.service.History(context.Background(), fs.Arg(0), from, to)
	if err != nil {
		return err
	}
	return printJSON(body)
}

func cmdRefresh() error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	daemon := fs.Bool("daemon", false, "keep running on the configured schedule")
	timeout := fs.Duration("timeout", 30*time.Minute, "bound for one refresh run")
	_ = fs.Parse(os.Args[2:])
	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.db.Close()
	if len(a.cfg.Refresh.Profiles) == 0 {
		return fmt.Errorf("no tracked profiles in refresh.profiles")
	}
	ctx, stop := signalContext()
	defer stop()
	if *daemon {
		metrics.StartServer(a.cfg.Metrics.Addr)
		err := jobs.Schedule(ctx, a.cfg.Refresh.Schedule, a.refresher(), *timeout)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	rctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	return a.refresher().RunOnce(rctx)
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not YYYY-MM-DD", model.ErrInvalidRange, s)
	}
	return &d, nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/projectledger/cmd/projectledger/cli"
	"github.com/odyssey-erp/projectledger/internal/app"
	"github.com/odyssey-erp/projectledger/internal/observability"
	"github.com/odyssey-erp/projectledger/internal/platform/db"
	"github.com/odyssey-erp/projectledger/internal/sequence"
	"github.com/odyssey-erp/projectledger/jobs"
)

const usage = `usage: projectledger <command> [flags]

commands:
  serve          run the HTTP API (default)
  migrate        apply database migrations and exit
  seq-backfill   seed code counters from existing rows (--apply to write)
  jobs trigger   enqueue overdue | revalue | low-stock
  jobs stats     print queue statistics
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var code int
	switch cmd {
	case "serve":
		code = serve(ctx, cfg, logger)
	case "migrate":
		if err := db.Migrate(cfg.PGDSN); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			code = 1
		} else {
			logger.Info("migrations applied")
		}
	case "seq-backfill":
		code = seqBackfill(ctx, cfg, logger, args)
	case "jobs":
		code = jobsCommand(ctx, cfg, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		code = 2
	}
	stop()
	os.Exit(code)
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.PGDSN); err != nil {
			logger.Error("migrate on start", slog.Any("error", err))
			return 1
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	services := app.NewServices(pool, cfg, logger)
	metrics := observability.NewMetrics()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		return 1
	}
	defer jobClient.Close()

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		Handlers:   services.Handlers(cfg, logger),
		JobHandler: jobs.NewHandler(inspector, jobClient, logger),
		Metrics:    metrics,
		DB:         pool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		return 1
	}
	return 0
}

func seqBackfill(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("seq-backfill", flag.ContinueOnError)
	apply := fs.Bool("apply", false, "raise counters instead of previewing")
	asJSON := fs.Bool("json", false, "print a JSON summary")
	prefixes := fs.String("prefixes", "", "comma separated code prefixes, e.g. PROJ,FACT")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	list := func(ctx context.Context, kind sequence.Kind) ([]string, error) {
		return sequence.ExistingCodes(ctx, pool, kind)
	}
	seq, err := cli.NewSeqCLI(list, sequence.NewCounter(pool))
	if err != nil {
		logger.Error("init seq cli", slog.Any("error", err))
		return 1
	}
	opts := cli.SeqBackfillOptions{Apply: *apply, JSONOutput: *asJSON}
	if *prefixes != "" {
		opts.Prefixes = strings.Split(*prefixes, ",")
	}
	return seq.BackfillCommand(ctx, opts)
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	jc, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer jc.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "jobs trigger: job name required")
			return 2
		}
		info, err := jc.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s\n", info.Type, info.ID)
	case "stats":
		stats, err := jc.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		_ = json.NewEncoder(os.Stdout).Encode(stats)
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	return 0
}

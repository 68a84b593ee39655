package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	"whitelistbot/cmd/whitelistbot/cmds"
	"whitelistbot/internal/api"
	"whitelistbot/internal/audit"
	"whitelistbot/internal/backends"
	"whitelistbot/internal/cache"
	"whitelistbot/internal/ports"
	"whitelistbot/internal/pub"
	"whitelistbot/internal/types"
	"whitelistbot/internal/whitelist"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const usage = `usage: whitelistbot [-config file.yml] [serve | seed <users.yml> | get <external-id>]`

func main() {
	// Load environment variables
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Info("The .env file not found.")
	}
	setupLogging()

	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to the YAML config file")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	cfg, err := types.LoadAppConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("Failed to apply env config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	userStore, err := backends.UserBackendFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize user store: %v", err)
	}

	ctx := context.Background()
	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}
	switch cmd {
	case "serve":
		err = serve(ctx, cfg, userStore)
	case "seed":
		if len(args) != 2 {
			flag.Usage()
			os.Exit(2)
		}
		err = cmds.SeedUsers(ctx, userStore, args[1], cfg.MaxWhitelistSlots)
	case "get":
		if len(args) != 2 {
			flag.Usage()
			os.Exit(2)
		}
		err = cmds.GetUser(ctx, userStore, args[1], os.Stdout)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Fatalf("%s failed", cmd)
	}
}

func serve(ctx context.Context, cfg types.AppConfig, userStore ports.UserStore) error {
	sink, err := auditSink(ctx, cfg.Audit)
	if err != nil {
		return err
	}
	auditQueue := audit.NewAsync(sink, cfg.Audit.QueueSize)

	userCache := cache.New(userStore)
	if err := userCache.Refresh(ctx); err != nil {
		return err
	}
	log.WithField("users", userCache.Len()).Info("user cache loaded")

	svc := whitelist.NewService(userCache, userStore, auditQueue, types.SlotLimitFromEnv(cfg.MaxWhitelistSlots))
	stop, done := api.RunServerInterruptible(cfg.Port, svc)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.WithField("signal", s.String()).Info("shutting down")
		stop <- struct{}{}
		err = <-done
	case err = <-done:
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cerr := auditQueue.Close(drainCtx); cerr != nil {
		log.WithError(cerr).Warn("audit queue not drained")
	}
	return err
}

// auditSink always logs; with an SNS topic configured it also publishes.
func auditSink(ctx context.Context, cfg types.AuditConfig) (ports.AuditSink, error) {
	if cfg.SNSArn == "" {
		return audit.LogSink{}, nil
	}
	if err := audit.ValidateFilter(cfg.Filter); err != nil {
		return nil, err
	}
	snsClient, err := pub.SNSClientFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return audit.Multi{
		audit.LogSink{},
		audit.NewSNSSink(pub.NewSNS(snsClient), cfg.SNSArn, cfg.Filter),
	}, nil
}

func setupLogging() {
	if lvl, err := log.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}
	if os.Getenv("LOG_FORMAT") == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

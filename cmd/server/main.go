package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/adina8244/grounded-git-mcp-server/internal/auth"
	"github.com/adina8244/grounded-git-mcp-server/internal/engine"
	"github.com/adina8244/grounded-git-mcp-server/internal/executor"
	"github.com/adina8244/grounded-git-mcp-server/internal/policy"
	"github.com/adina8244/grounded-git-mcp-server/internal/scheduler"
	"github.com/adina8244/grounded-git-mcp-server/internal/server"
	"github.com/adina8244/grounded-git-mcp-server/internal/store"
)

func main() {
	setupLogger()

	log.Info().Msg("starting grounded git approval server")

	ctx, cancel := setupSignalHandler()
	defer cancel()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}

	log.Info().Msg("server stopped successfully")
}

func run(ctx context.Context) error {
	st, err := initStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}()

	pol, err := initPolicy()
	if err != nil {
		return err
	}

	eng := engine.New(st, executor.New(), pol)

	sched := scheduler.New(eng, st, pol)
	go sched.Run(ctx)
	defer sched.Close()

	authManager := initAuthManager()

	cfg := server.LoadConfig()
	srv := server.New(cfg, eng, pol, authManager)

	return runServer(ctx, srv)
}

func setupLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	return ctx, cancel
}

func initStore() (*store.Store, error) {
	dbPath := getEnv("DB_PATH", "./db/proposals.db")

	log.Info().Str("path", dbPath).Msg("initializing proposal store")

	st, err := store.New(dbPath)
	if err != nil {
		return nil, err
	}

	log.Info().Msg("proposal store initialized")
	return st, nil
}

func initPolicy() (*policy.Store, error) {
	policyFile := getEnv("POLICY_FILE", "./policy.yaml")

	log.Info().Str("path", policyFile).Msg("loading safety policy")

	pol, err := policy.NewStore(policyFile)
	if err != nil {
		return nil, err
	}

	if _, err := policy.NewWatcher(pol); err != nil {
		log.Warn().Err(err).Msg("policy hot reload unavailable")
	}

	return pol, nil
}

func initAuthManager() *auth.Manager {
	requireAuth := getEnv("REQUIRE_AUTH", "false") == "true"

	log.Info().Bool("required", requireAuth).Msg("initializing auth manager")

	return auth.NewManager(auth.Config{
		JWTSecret:       os.Getenv("JWT_SECRET"),
		TokenExpiration: time.Duration(getEnvInt("TOKEN_EXPIRATION_HOURS", 24)) * time.Hour,
		RequireAuth:     requireAuth,
	})
}

func runServer(ctx context.Context, srv *server.Server) error {
	errChan := make(chan error, 1)

	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

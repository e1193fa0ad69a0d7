// Command server is the gridlink game server: it loads the player
// connection graph, then serves matchmaking and gameplay traffic over
// WebSocket until asked to shut down.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fourthdown/gridlink/go/internal/config"
	"github.com/fourthdown/gridlink/go/internal/dbconfig"
	"github.com/fourthdown/gridlink/go/internal/endpoint"
	"github.com/fourthdown/gridlink/go/internal/graph"
	"github.com/fourthdown/gridlink/go/internal/matchmaker"
	"github.com/fourthdown/gridlink/go/internal/outbox"
	"github.com/fourthdown/gridlink/go/internal/pathfinder"
	"github.com/fourthdown/gridlink/go/internal/session"
	"github.com/fourthdown/gridlink/go/internal/stats"
	"github.com/fourthdown/gridlink/go/internal/transport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, reading configuration from the environment")
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCfg := dbconfig.NewConfigFromEnv()

	sqlDB, err := sql.Open("postgres", dbCfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database connection")
	}
	defer sqlDB.Close()

	pool, err := pgxpool.New(ctx, dbCfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open pgx pool")
	}
	defer pool.Close()

	tuning, err := config.Load(getEnv("DIFFICULTY_CONFIG", "configs/difficulty.yaml"))
	if err != nil {
		log.Warn().Err(err).Msg("failed to load difficulty config, falling back to defaults")
		tuning = config.Default()
	}

	graphRepo := graph.NewRepository(sqlDB)
	store := graph.NewStore(graphRepo)

	loadCtx, cancelLoad := context.WithTimeout(ctx, 2*time.Minute)
	if err := store.LoadSnapshot(loadCtx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to load graph snapshot")
	}
	cancelLoad()

	finder := pathfinder.New(store, tuning.Timing.PathfinderDepth)
	picker := endpoint.New(store, finder, tuning.Timing.EndpointSelectionTries, time.Now().UnixNano())

	natsURL := getEnv("NATS_URL", nats.DefaultURL)
	nc, err := nats.Connect(natsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create JetStream context")
	}

	if err := outbox.EnsureStream(ctx, js, stats.DefaultConsumerConfig().StreamName, outbox.SubjectSessionOutcome); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure stats stream")
	}

	outboxRepo := outbox.NewRepository(sqlDB)
	publisher := outbox.NewNATSPublisher(js, outbox.SubjectSessionOutcome)
	outboxWorker := outbox.NewWorker(outboxRepo, publisher, outbox.DefaultConfig())
	if err := outboxWorker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start outbox worker")
	}
	defer outboxWorker.Stop()

	statsRepo := stats.NewRepository(sqlDB)
	statsConsumer := stats.NewConsumer(statsRepo, js, stats.DefaultConsumerConfig())
	if err := statsConsumer.Ensure(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to set up stats consumer")
	}
	go func() {
		if err := statsConsumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("stats consumer stopped")
		}
	}()

	emitterManager := transport.NewConnectionManager(transport.DefaultConnectionConfig(), nil, nil, picker, tuning)
	engine := session.NewEngine(store, finder, outboxRepo, emitterManager, clockwork.NewRealClock(), tuning)
	mm := matchmaker.New(picker, tuning, engine)
	emitterManager.Wire(mm, engine)

	auth := authenticatorFromEnv()
	handler := transport.NewHandler(emitterManager, auth)
	httpServer := transport.NewServer(getEnv("ADDR", ":8080"), handler, emitterManager, store.Ready)

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("gridlink server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	engine.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during http server shutdown")
	}
}

func authenticatorFromEnv() transport.Authenticator {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Warn().Msg("JWT_SECRET not set; using an insecure development secret")
		secret = "dev-secret-do-not-use-in-production"
	}
	return transport.NewJWTAuthenticator([]byte(secret))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

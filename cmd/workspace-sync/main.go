// Command workspace-sync runs the collaborative workspace sync service:
// the document sync, presence relay and event messenger endpoints over
// one listener, backed by the in-process document engine and an optional
// PostgreSQL store.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/pixlland/workspace-sync/pkg/assettree"
	"github.com/pixlland/workspace-sync/pkg/backend"
	"github.com/pixlland/workspace-sync/pkg/blob"
	"github.com/pixlland/workspace-sync/pkg/config"
	"github.com/pixlland/workspace-sync/pkg/docs"
	"github.com/pixlland/workspace-sync/pkg/logger"
	"github.com/pixlland/workspace-sync/pkg/server"
	"github.com/pixlland/workspace-sync/pkg/store"
	"github.com/pixlland/workspace-sync/pkg/store/postgres"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the TOML config file")
		addr       = flag.String("addr", "", "listen address override")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fallback := zerolog.New(os.Stderr).With().Timestamp().Logger()
		fallback.Fatal().Err(err).Msg("configuration failed")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logData, err := logger.New().FromPath(cfg.LogPath).WithLevel(level).Make()
	if err != nil {
		fallback := zerolog.New(os.Stderr).With().Timestamp().Logger()
		fallback.Fatal().Err(err).Msg("logger setup failed")
	}
	log := logData.Logger
	if logData.LogFile != nil {
		defer logData.LogFile.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.PostgresDSN == "" {
		log.Warn().Msg("no database configured, documents seed from defaults only")
	} else {
		pg, err := postgres.NewPostgresStore(cfg.PostgresDSN)
		if err != nil {
			log.Warn().Err(err).Msg("database unreachable, continuing without store")
		} else {
			if err := pg.Migrate(ctx); err != nil {
				log.Error().Err(err).Msg("migration failed")
			}
			st = pg
			defer pg.Close()
		}
	}

	var bucket blob.Bucket
	if dir, err := blob.NewDirBucket(cfg.BlobDir); err != nil {
		log.Warn().Err(err).Str("dir", cfg.BlobDir).Msg("blob storage unavailable")
	} else {
		bucket = dir
	}

	engine := backend.NewMemoryBackend()
	mgr := docs.NewManager(st, bucket, engine.Connect(), logger.Component(log, "docs"), docs.Options{
		SkyboxEnabled: cfg.DefaultSkybox,
		SkyboxSource:  cfg.SkyboxSource,
	})
	mgr.SeedAll(ctx, cfg.SceneSeedLimit, cfg.AssetSeedLimit)

	tree := assettree.NewMutator(st, engine.Connect(), logger.Component(log, "assettree"))

	srv := server.New(cfg, engine, mgr, tree, log)
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

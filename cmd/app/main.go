package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/bookletreorder/internal/batch"
	cfgpkg "github.com/local/bookletreorder/internal/config"
	"github.com/local/bookletreorder/internal/document"
	"github.com/local/bookletreorder/internal/export"
	logpkg "github.com/local/bookletreorder/internal/logger"
	"github.com/local/bookletreorder/internal/metrics"
	"github.com/local/bookletreorder/internal/server"
	"github.com/local/bookletreorder/internal/source"
	"github.com/local/bookletreorder/internal/statuscheck"
	"github.com/local/bookletreorder/internal/storage"
	"github.com/local/bookletreorder/internal/store"
)

func main() {
	if err := cfgpkg.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	cfg := cfgpkg.FromEnv()

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		Service:      "bookletreorder",
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	model := document.NewPDFModel()

	stager, err := server.NewStager(cfg.Server.UploadDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare upload dir")
	}
	stager.Cleanup(cfg.Server.UploadMaxAge)

	observers := []batch.Observer{metrics.NewObserver(), stager}
	checks := statuscheck.Options{
		ExportDir: cfg.Export.Dir,
		UploadDir: cfg.Server.UploadDir,
		PDFEngine: model.SelfTest,
	}

	// Status mirror
	if cfg.Status.Enabled {
		rs, err := store.NewRedisStatus(cfg.Status.RedisURL, cfg.Status.TTL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable; status mirror disabled")
		} else {
			defer rs.Close()
			mirror := store.NewMirror(rs, 0)
			defer mirror.Close()
			observers = append(observers, mirror)
			checks.Redis = rs
		}
	}

	engine := batch.New(model, batch.Options{
		Concurrency: cfg.Engine.Concurrency,
		Observers:   observers,
	})

	// Export sink
	var sink export.Sink = export.LocalSink{Dir: cfg.Export.Dir}
	if cfg.Export.S3Bucket != "" {
		s3c, err := storage.NewS3Client(ctx, cfg.Export.S3Bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init S3 export")
		}
		sink = export.S3Sink{Client: s3c, Prefix: cfg.Export.S3Prefix, Password: cfg.Export.Password}
		checks.S3 = s3c
	}

	srv := server.New(server.Dependencies{
		Engine:   engine,
		Exporter: export.New(engine, sink),
		Stager:   stager,
		Resolver: source.NewResolver(cfg.Server.SourcePassword, cfg.Server.MaxUploadMB<<20),
		Renderer: document.Renderer{DPI: cfg.Preview.DPI, Quality: cfg.Preview.Quality},
		Status:   statuscheck.New(checks),
		Metrics:  metrics.Handler(),
	}, server.Options{
		MaxUploadMB:    cfg.Server.MaxUploadMB,
		AllowLocalRefs: cfg.Server.AllowLocalRefs,
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Hourly sweep of orphaned uploads
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stager.Cleanup(cfg.Server.UploadMaxAge)
			}
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Info().Int("entries", engine.Len()).Msg("shutdown complete")
}

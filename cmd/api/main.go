package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/docqa/internal/app"
	"github.com/seanblong/docqa/internal/config"
	"github.com/seanblong/docqa/internal/watch"
	"github.com/seanblong/docqa/pkg/models"
	"github.com/spf13/pflag"
)

type pipeline interface {
	Ingest(ctx context.Context) (models.RunSummary, error)
	Ask(ctx context.Context, question string) (models.QueryResult, error)
	DocumentInfo(ctx context.Context) (models.DocumentInfo, error)
}

type appPipeline struct{ *app.App }

func (p appPipeline) Ask(ctx context.Context, q string) (models.QueryResult, error) {
	return p.Search.Ask(ctx, q)
}

func (p appPipeline) DocumentInfo(ctx context.Context) (models.DocumentInfo, error) {
	return p.Search.DocumentInfo(ctx)
}

func main() {
	// Create flagset for configuration
	fs := pflag.NewFlagSet("docqa-api", pflag.ExitOnError)

	// Load configuration
	cfg, err := config.Load("", fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	fs.Usage = cfg.Usage

	// Set up logging
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level '%s': %v\n", cfg.LogLevel, err)
		os.Exit(1)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	logger.Info().Str("provider", cfg.Provider).Str("backend", cfg.Backend).Str("log_level", cfg.LogLevel).Msg("starting docqa api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build pipeline")
	}
	defer a.Close()

	p := appPipeline{a}
	if sum, err := p.Ingest(ctx); err != nil {
		logger.Error().Err(err).Msg("initial ingestion failed")
	} else {
		logger.Info().Int("ingested", sum.FilesIngested).Int("chunks", sum.ChunksAdded).Msg("initial ingestion complete")
	}

	if cfg.Watch {
		w, err := watch.New(cfg.DataDir, cfg.IndexerOptions().Extensions, watch.DefaultDebounce)
		if err != nil {
			logger.Error().Err(err).Str("dir", cfg.DataDir).Msg("cannot watch data directory")
		} else {
			go func() {
				_ = w.Run(ctx, func(ctx context.Context) {
					if _, err := p.Ingest(ctx); err != nil {
						logger.Error().Err(err).Msg("re-ingestion failed")
					}
				})
			}()
		}
	}

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: newHandler(p, logger), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func newHandler(p pipeline, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		info, err := p.DocumentInfo(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, r, info)
	})

	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		start := time.Now()
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" && r.Method == http.MethodPost {
			var body struct {
				Question string `json:"question"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				q = strings.TrimSpace(body.Question)
			}
		}
		if q == "" {
			http.Error(w, "missing query parameter q", http.StatusBadRequest)
			return
		}

		res, err := p.Ask(r.Context(), q)
		if err != nil {
			if errors.Is(err, models.ErrInvalidInput) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if res.CitedSources == nil {
			res.CitedSources = []models.Citation{}
		}
		writeJSON(w, r, res)

		hlog.FromRequest(r).Info().Str("path", "/query").Str("status", string(res.Status)).Int("sources", len(res.CitedSources)).Dur("dur", time.Since(start)).Msg("served")
	})

	mux.HandleFunc("/ingest", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sum, err := p.Ingest(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, r, sum)
	})

	return hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(mux),
	)
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to encode response")
	}
}

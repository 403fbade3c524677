package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cwolfbr/indflow/internal/model"
	"github.com/cwolfbr/indflow/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger server",
	Long:  "Exposes the bulletin pipeline over HTTP so the e-mail automation can trigger runs: GET /health, POST /process (synchronous) and POST /process-async.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, port),
			Handler:           newServer(ctx, env.Pipeline, env.Store).routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("serve: listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("serve: shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// runner is the slice of the pipeline the HTTP layer needs.
type runner interface {
	Run(ctx context.Context, req pipeline.Request) *model.RunResult
}

// statser is the slice of the store the HTTP layer needs.
type statser interface {
	Stats(ctx context.Context, days int) (*model.StoreStats, error)
}

// server exposes the bulletin pipeline over HTTP. The portal allows one
// browser session at a time, so runs are serialized on mu no matter which
// endpoint triggered them.
type server struct {
	pipe    runner
	stats   statser
	baseCtx context.Context
	mu      sync.Mutex
}

// newServer builds the HTTP layer. baseCtx bounds background runs so they
// stop with the server rather than with the request that triggered them.
func newServer(baseCtx context.Context, pipe runner, stats statser) *server {
	return &server{pipe: pipe, stats: stats, baseCtx: baseCtx}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Post("/process", s.handleProcess)
	r.Post("/process-async", s.handleProcessAsync)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "days must be a non-negative integer"})
			return
		}
		days = n
	}

	stats, err := s.stats.Stats(r.Context(), days)
	if err != nil {
		zap.L().Error("serve: stats query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats query failed"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleProcess runs the bulletin synchronously and returns the full result.
// The caller waits; n8n uses this for manual re-runs with a long timeout.
func (s *server) handleProcess(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeTrigger(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	result := s.pipe.Run(r.Context(), payload.request())
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, result)
}

// handleProcessAsync acknowledges immediately and runs in the background.
func (s *server) handleProcessAsync(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeTrigger(w, r)
	if !ok {
		return
	}

	bulletin := payload.BulletinNumber
	if bulletin == 0 {
		bulletin = pipeline.ExtractBulletinNumber(payload.EmailSubject)
	}

	req := payload.request()
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		result := s.pipe.Run(s.baseCtx, req)
		zap.L().Info("serve: background run finished",
			zap.Int("bulletin", result.Bulletin),
			zap.Bool("success", result.Success),
			zap.Int("errors", len(result.Errors)),
		)
	}()

	label := "novo"
	var number *int
	if bulletin > 0 {
		label = strconv.Itoa(bulletin)
		number = &bulletin
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{
		Status:         "accepted",
		Message:        fmt.Sprintf("Processamento do boletim %s iniciado em background", label),
		BulletinNumber: number,
	})
}

// triggerPayload is the webhook body. The boolean toggles default to true
// when absent, matching what the e-mail automation sends.
type triggerPayload struct {
	EmailSubject   string `json:"email_subject"`
	EmailHTML      string `json:"email_html"`
	BulletinNumber int    `json:"boletim_number"`
	BulletinURL    string `json:"boletim_url"`
	DownloadDocs   *bool  `json:"download_editais"`
	Notify         *bool  `json:"send_whatsapp"`
}

func (t triggerPayload) request() pipeline.Request {
	req := pipeline.Request{
		BulletinNumber: t.BulletinNumber,
		BulletinURL:    t.BulletinURL,
		EmailSubject:   t.EmailSubject,
		EmailHTML:      t.EmailHTML,
		DownloadDocs:   true,
		Notify:         true,
	}
	if t.DownloadDocs != nil {
		req.DownloadDocs = *t.DownloadDocs
	}
	if t.Notify != nil {
		req.Notify = *t.Notify
	}
	return req
}

// acceptedResponse acknowledges an async trigger. BulletinNumber is null
// when the trigger did not name one.
type acceptedResponse struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	BulletinNumber *int   `json:"boletim_number"`
}

// decodeTrigger parses the request body. An empty body means "newest
// bulletin, all stages on".
func decodeTrigger(w http.ResponseWriter, r *http.Request) (triggerPayload, bool) {
	var payload triggerPayload
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return triggerPayload{}, false
		}
	}
	return payload, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("serve: write response", zap.Error(err))
	}
}

// requestLogger logs one line per request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

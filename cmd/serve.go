package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/landcover-cli/internal/classify"
	"github.com/sells-group/landcover-cli/internal/normalize"
	"github.com/sells-group/landcover-cli/internal/store"
	"github.com/sells-group/landcover-cli/internal/table"
	"github.com/sells-group/landcover-cli/internal/visualize"
)

var servePort int

// maxRequestBytes caps a /visualize body, inline CSV included.
const maxRequestBytes = 8 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the visualizer and vocabulary over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		base, err := visualizeOptions()
		if err != nil {
			return err
		}
		vocab, err := loadVocabulary("")
		if err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(base, vocab, st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// visualizeRequest is the body of POST /v1/visualize. Empty fields fall back
// to the server's configured defaults; no rows means the sample table.
type visualizeRequest struct {
	Model  string              `json:"model"`
	X      string              `json:"x"`
	Y      string              `json:"y"`
	Target string              `json:"target"`
	Format string              `json:"format"`
	Seed   *int64              `json:"seed"`
	Rows   []map[string]string `json:"rows"`
}

var contentTypes = map[string]string{
	"png":  "image/png",
	"svg":  "image/svg+xml",
	"pdf":  "application/pdf",
	"eps":  "application/postscript",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"tex":  "application/x-tex",
}

// buildRouter wires the HTTP API. base carries the configured visualizer
// defaults; st receives one run per successful or failed visualization.
func buildRouter(base visualize.Options, vocab *normalize.Vocabulary, st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"X-Accuracy"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/models", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"models": classify.Kinds()})
		})

		r.Get("/vocabulary", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"categories": vocab.Canonical(),
				"vocabulary": vocab,
			})
		})

		r.Post("/visualize", func(w http.ResponseWriter, req *http.Request) {
			var body visualizeRequest
			req.Body = http.MaxBytesReader(w, req.Body, maxRequestBytes)
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				var tooBig *http.MaxBytesError
				if errors.As(err, &tooBig) {
					writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
						"error": fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit),
					})
					return
				}
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}

			opts, tbl, err := body.options(base)
			if err != nil {
				writeError(w, err)
				return
			}
			var img bytes.Buffer
			opts.Output = &img

			ctx := req.Context()
			input := fmt.Sprintf("http %s(%s, %s) -> %s", opts.Kind, opts.FeatureX, opts.FeatureY, opts.Target)
			var res *visualize.Result
			_, err = store.Track(ctx, st, store.KindVisualize, input, func() (any, error) {
				var verr error
				res, verr = visualize.Visualize(ctx, tbl, opts)
				if verr != nil {
					return nil, verr
				}
				return map[string]any{"model": res.Kind, "score": res.Score, "classes": res.Classes}, nil
			})
			if err != nil {
				writeError(w, err)
				return
			}

			w.Header().Set("Content-Type", contentTypes[opts.Format])
			w.Header().Set("X-Accuracy", visualize.FormatScore(res.Score))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(img.Bytes())
		})
	})

	return r
}

// options overlays the request on the configured defaults and builds the
// input table.
func (b visualizeRequest) options(base visualize.Options) (visualize.Options, *table.Table, error) {
	opts := base
	if b.Model != "" {
		kind, err := classify.ParseKind(b.Model)
		if err != nil {
			return opts, nil, err
		}
		opts.Kind = kind
	}
	if b.X != "" {
		opts.FeatureX = b.X
	}
	if b.Y != "" {
		opts.FeatureY = b.Y
	}
	if b.Target != "" {
		opts.Target = b.Target
	}
	opts.Format = strings.ToLower(b.Format)
	if opts.Format == "" {
		opts.Format = visualize.DefaultFormat
	}
	if _, ok := contentTypes[opts.Format]; !ok {
		return opts, nil, badRequest(eris.Errorf("unsupported format %q", opts.Format))
	}
	// rand.Rand is not safe for concurrent use; every request gets its own.
	if b.Seed != nil {
		opts.Params.Seed = *b.Seed
		opts.Rand = rand.New(rand.NewSource(*b.Seed)) //nolint:gosec
	} else if base.Rand != nil {
		opts.Rand = rand.New(rand.NewSource(base.Params.Seed)) //nolint:gosec
	}
	opts.OutputPath = ""
	opts.Stdout = nil

	if len(b.Rows) == 0 {
		return opts, table.Sample(), nil
	}
	tbl, err := table.FromRecords(b.Rows)
	if err != nil {
		return opts, nil, badRequest(err)
	}
	return opts, tbl, nil
}

type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return &requestError{err: err} }

// writeError maps caller mistakes to 400 and everything else to 500.
func writeError(w http.ResponseWriter, err error) {
	var (
		kindErr *classify.InvalidModelKindError
		colErr  *table.InvalidColumnError
		reqErr  *requestError
	)
	status := http.StatusInternalServerError
	msg := "internal error"
	if errors.As(err, &kindErr) || errors.As(err, &colErr) || errors.As(err, &reqErr) {
		status = http.StatusBadRequest
		msg = err.Error()
	} else {
		zap.L().Error("visualize request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

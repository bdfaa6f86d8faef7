package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"quantumquery/internal/app"
	"quantumquery/internal/httputil"
	"quantumquery/internal/qa"
)

//go:embed index.html
var pages embed.FS

var indexTemplate = template.Must(template.ParseFS(pages, "index.html"))

const shutdownTimeout = 10 * time.Second

type askRequest struct {
	Question  string `json:"question" validate:"max=4000"`
	APIKey    string `json:"api_key" validate:"max=512"`
	ContextID string `json:"context_id" validate:"omitempty,uuid4"`
}

type contextRequest struct {
	APIKey string `json:"api_key" validate:"max=512"`
}

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	if err := run(deps); err != nil {
		deps.Log.Error("server failed", "err", err)
		deps.Close()
		os.Exit(1)
	}
	deps.Close()
}

func run(deps app.Deps) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.Config.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		deps.Log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		deps.Log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newRouter(deps app.Deps) *chi.Mux {
	r := httputil.NewRouter(deps.Log, deps.Config.CompletionTimeout+30*time.Second)

	r.Get("/", indexHandler(deps))
	r.Post("/api/ask", askHandler(deps))
	r.Post("/api/context", contextHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps))
	return r
}

func indexHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		data := map[string]any{"NeedsKey": !deps.Service.HasDefaultKey()}
		if err := indexTemplate.Execute(w, data); err != nil {
			deps.Log.Error("failed to render index", "err", err)
		}
	}
}

func askHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		uploads, err := decodeRequest(w, r, deps.Config.MaxUploadSize, &req)
		if err != nil {
			failDecode(deps, w, err)
			return
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		resp, err := deps.Service.Ask(r.Context(), qa.Request{
			Question:  req.Question,
			APIKey:    req.APIKey,
			ContextID: req.ContextID,
			PDF:       uploads.pdf,
			Image:     uploads.image,
		})
		switch {
		case errors.Is(err, qa.ErrMissingCredential):
			httputil.Fail(deps.Log, w, "please enter your Groq API key", err, http.StatusUnauthorized)
			return
		case errors.Is(err, qa.ErrMissingQuestion):
			httputil.Fail(deps.Log, w, "please enter a question", err, http.StatusBadRequest)
			return
		case err != nil:
			httputil.Fail(deps.Log, w, "failed to answer question", err, http.StatusInternalServerError)
			return
		}

		status := http.StatusOK
		if !resp.OK {
			status = http.StatusBadGateway
		}
		httputil.WriteJSON(w, status, resp)
	}
}

func contextHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contextRequest
		uploads, err := decodeRequest(w, r, deps.Config.MaxUploadSize, &req)
		if err != nil {
			failDecode(deps, w, err)
			return
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		out, err := deps.Service.Extract(r.Context(), qa.ExtractRequest{
			APIKey: req.APIKey,
			PDF:    uploads.pdf,
			Image:  uploads.image,
		})
		if errors.Is(err, qa.ErrNoUploads) {
			httputil.Fail(deps.Log, w, "upload a PDF or an image", err, http.StatusBadRequest)
			return
		}
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to extract context", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}

type uploads struct {
	pdf   []byte
	image []byte
}

var errTooLarge = errors.New("request too large")

// decodeRequest fills dst from a JSON body or from multipart form fields
// named after dst's json tags, and reads the optional "pdf" and "image" files.
func decodeRequest(w http.ResponseWriter, r *http.Request, maxSize int64, dst any) (uploads, error) {
	if r.ContentLength > maxSize {
		return uploads{}, errTooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			return uploads{}, classify(err)
		}
		return uploads{}, nil
	}

	if err := r.ParseMultipartForm(maxSize); err != nil {
		return uploads{}, classify(err)
	}
	fields := map[string]string{}
	for key, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	// Round-trip through JSON so form fields and JSON bodies share one struct.
	raw, err := json.Marshal(fields)
	if err != nil {
		return uploads{}, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return uploads{}, err
	}

	var up uploads
	if up.pdf, err = readFile(r.MultipartForm, "pdf"); err != nil {
		return uploads{}, err
	}
	if up.image, err = readFile(r.MultipartForm, "image"); err != nil {
		return uploads{}, err
	}
	return up, nil
}

func readFile(form *multipart.Form, field string) ([]byte, error) {
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, nil
	}
	f, err := headers[0].Open()
	if err != nil {
		return nil, fmt.Errorf("open %s upload: %w", field, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func classify(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errTooLarge
	}
	return err
}

func failDecode(deps app.Deps, w http.ResponseWriter, err error) {
	if errors.Is(err, errTooLarge) {
		httputil.Fail(deps.Log, w, fmt.Sprintf("upload too large (max %d bytes)", deps.Config.MaxUploadSize), err, http.StatusBadRequest)
		return
	}
	httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
}

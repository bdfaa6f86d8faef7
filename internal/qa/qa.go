package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"quantumquery/internal/cache"
	"quantumquery/internal/events"
	"quantumquery/internal/ingest"
	"quantumquery/internal/llm"
	"quantumquery/internal/prompt"
	"quantumquery/internal/render"
)

var (
	ErrMissingCredential = errors.New("an API key is required")
	ErrMissingQuestion   = errors.New("a question is required")
	ErrNoUploads         = errors.New("a PDF or image upload is required")
)

const (
	publishAttempts = 2
	publishBackoff  = 100 * time.Millisecond
)

// ClientFactory builds a completion client bound to one API key.
type ClientFactory func(apiKey string) (llm.Client, error)

// RecognizerFactory builds an OCR engine for one API key. It returns nil when
// image recognition is unavailable.
type RecognizerFactory func(apiKey string) ingest.Recognizer

// Request is one user action: a question plus optional uploads.
type Request struct {
	Question string
	// APIKey overrides the configured key when set.
	APIKey string
	// ContextID refers to contexts stored by a previous Extract call.
	ContextID string
	PDF       []byte
	Image     []byte
}

// Response is the outcome of Ask. OK distinguishes a model answer from a
// failed call; for failures Answer holds the text shown to the user.
type Response struct {
	ID         uuid.UUID       `json:"id"`
	Answer     string          `json:"answer"`
	OK         bool            `json:"ok"`
	Model      string          `json:"model,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	ErrorBody  string          `json:"error_body,omitempty"`
	Contexts   []ingest.Result `json:"contexts,omitempty"`
	Warnings   []string        `json:"warnings,omitempty"`
}

// ExtractRequest carries uploads to be summarized and kept for later questions.
type ExtractRequest struct {
	APIKey string
	PDF    []byte
	Image  []byte
}

// Extraction is the outcome of Extract. ContextID is empty when no upload
// produced any text.
type Extraction struct {
	ContextID string          `json:"context_id,omitempty"`
	Contexts  []ingest.Result `json:"contexts"`
	Warnings  []string        `json:"warnings,omitempty"`
}

// Options tunes a Service.
type Options struct {
	DefaultAPIKey string
	MergeMath     bool
	ContextTTL    time.Duration
}

// Service runs the ingest → compose → complete pipeline for each request.
// It holds no per-user state; stored contexts live in the cache.
type Service struct {
	log         *slog.Logger
	ingestor    *ingest.Ingestor
	cache       cache.Cache
	events      events.Publisher
	clients     ClientFactory
	recognizers RecognizerFactory
	opts        Options
	now         func() time.Time
}

// NewService wires a Service. recognizers may be nil.
func NewService(log *slog.Logger, ingestor *ingest.Ingestor, c cache.Cache, pub events.Publisher, clients ClientFactory, recognizers RecognizerFactory, opts Options) *Service {
	if pub == nil {
		pub = events.NoopPublisher{}
	}
	if recognizers == nil {
		recognizers = func(string) ingest.Recognizer { return nil }
	}
	return &Service{
		log:         log,
		ingestor:    ingestor,
		cache:       c,
		events:      pub,
		clients:     clients,
		recognizers: recognizers,
		opts:        opts,
		now:         time.Now,
	}
}

// HasDefaultKey reports whether a key was configured at startup.
func (s *Service) HasDefaultKey() bool {
	return s.opts.DefaultAPIKey != ""
}

// Ask answers a question. Only a missing credential or question is returned
// as an error; extraction problems become warnings and remote failures come
// back as a Response with OK false.
func (s *Service) Ask(ctx context.Context, req Request) (Response, error) {
	key := s.resolveKey(req.APIKey)
	if key == "" {
		return Response{}, ErrMissingCredential
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Response{}, ErrMissingQuestion
	}

	start := s.now()
	resp := Response{ID: uuid.New()}
	log := s.log.With("interaction_id", resp.ID)

	resp.Contexts, resp.Warnings = s.gatherContexts(ctx, key, req)
	blocks := make([]prompt.Block, 0, len(resp.Contexts))
	for _, c := range resp.Contexts {
		blocks = append(blocks, prompt.Block{Label: c.Label, Text: c.Text})
	}
	composed := prompt.Compose(question, blocks...)

	client, err := s.clients(key)
	if err != nil {
		return Response{}, fmt.Errorf("build completion client: %w", err)
	}

	answer, err := client.Complete(ctx, composed)
	var apiErr *llm.APIError
	switch {
	case err == nil:
		resp.OK = true
		resp.Model = answer.Model
		resp.Answer = answer.Text
		if s.opts.MergeMath {
			resp.Answer = render.MergeMathBlocks(resp.Answer)
		}
		log.Info("question answered", "model", answer.Model, "contexts", len(resp.Contexts), "prompt_chars", len(composed))
	case errors.As(err, &apiErr):
		resp.StatusCode = apiErr.StatusCode
		resp.ErrorBody = apiErr.Body
		resp.Answer = apiErr.Display()
		log.Warn("completion service rejected request", "status", apiErr.StatusCode)
	default:
		resp.Answer = "Error: " + err.Error()
		log.Error("completion request failed", "err", err)
	}

	s.publish(ctx, log, resp, start)
	return resp, nil
}

// Extract summarizes uploads and stores the result for later questions.
func (s *Service) Extract(ctx context.Context, req ExtractRequest) (Extraction, error) {
	if len(req.PDF) == 0 && len(req.Image) == 0 {
		return Extraction{}, ErrNoUploads
	}
	key := s.resolveKey(req.APIKey)
	contexts, warnings := s.ingestUploads(ctx, key, req.PDF, req.Image)
	out := Extraction{Contexts: contexts, Warnings: warnings}

	var stored []ingest.Result
	for _, c := range contexts {
		if c.Text != "" {
			stored = append(stored, c)
		}
	}
	if len(stored) == 0 {
		return out, nil
	}

	id := uuid.NewString()
	if err := s.cache.SetContexts(ctx, id, stored, s.opts.ContextTTL); err != nil {
		s.log.Warn("failed to store context", "err", err)
		out.Warnings = append(out.Warnings, "the extracted context could not be saved for later questions")
		return out, nil
	}
	out.ContextID = id
	return out, nil
}

func (s *Service) resolveKey(requestKey string) string {
	if k := strings.TrimSpace(requestKey); k != "" {
		return k
	}
	return s.opts.DefaultAPIKey
}

// gatherContexts merges stored contexts with fresh uploads. A fresh upload
// replaces a stored context of the same kind, so each kind appears once.
func (s *Service) gatherContexts(ctx context.Context, key string, req Request) ([]ingest.Result, []string) {
	byKind := make(map[ingest.Kind]ingest.Result)
	var warnings []string

	if req.ContextID != "" {
		stored, err := s.cache.GetContexts(ctx, req.ContextID)
		switch {
		case err != nil:
			s.log.Warn("failed to load stored context", "context_id", req.ContextID, "err", err)
			warnings = append(warnings, "the saved context could not be loaded")
		case stored == nil:
			warnings = append(warnings, "the saved context has expired or does not exist")
		default:
			for _, c := range stored {
				if _, ok := byKind[c.Kind]; !ok {
					byKind[c.Kind] = c
				}
			}
		}
	}

	fresh, uploadWarnings := s.ingestUploads(ctx, key, req.PDF, req.Image)
	warnings = append(warnings, uploadWarnings...)
	for _, c := range fresh {
		if c.Text != "" {
			byKind[c.Kind] = c
		}
	}

	var contexts []ingest.Result
	for _, kind := range []ingest.Kind{ingest.KindPDF, ingest.KindImage} {
		if c, ok := byKind[kind]; ok && c.Text != "" {
			contexts = append(contexts, c)
		}
	}
	return contexts, warnings
}

func (s *Service) ingestUploads(ctx context.Context, key string, pdf, image []byte) ([]ingest.Result, []string) {
	var (
		results  []ingest.Result
		warnings []string
	)
	if len(pdf) > 0 {
		res := s.ingestor.Ingest(ctx, ingest.KindPDF, pdf)
		results = append(results, res)
		if res.Warning != "" {
			warnings = append(warnings, res.Warning)
		}
	}
	if len(image) > 0 {
		var rec ingest.Recognizer
		if key != "" {
			rec = s.recognizers(key)
		}
		res := s.ingestor.WithRecognizer(rec).Ingest(ctx, ingest.KindImage, image)
		results = append(results, res)
		if res.Warning != "" {
			warnings = append(warnings, res.Warning)
		}
	}
	return results, warnings
}

func (s *Service) publish(ctx context.Context, log *slog.Logger, resp Response, start time.Time) {
	event := events.Interaction{
		ID:         resp.ID,
		StartedAt:  start,
		DurationMS: s.now().Sub(start).Milliseconds(),
		Warnings:   len(resp.Warnings),
		OK:         resp.OK,
		StatusCode: resp.StatusCode,
		Model:      resp.Model,
	}
	for _, c := range resp.Contexts {
		switch c.Kind {
		case ingest.KindPDF:
			event.HasPDF = true
		case ingest.KindImage:
			event.HasImage = true
		}
	}
	if err := events.PublishWithRetry(ctx, s.events, event, publishAttempts, publishBackoff); err != nil {
		log.Warn("failed to publish interaction", "err", err)
	}
}

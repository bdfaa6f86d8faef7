package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"quantumquery/internal/prompt"
	"quantumquery/internal/summarizer"
)

// Kind identifies the source of an extracted context.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

// Label is the heading the context is given inside a prompt.
func (k Kind) Label() string {
	switch k {
	case KindPDF:
		return prompt.LabelPDF
	case KindImage:
		return prompt.LabelImage
	default:
		return "[" + strings.ToUpper(string(k)) + " Context]"
	}
}

func (k Kind) noun() string {
	if k == KindPDF {
		return "PDF"
	}
	return string(k)
}

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrOCRDisabled     = errors.New("image text recognition is disabled")
)

// Recognizer is an OCR engine: it returns the text visible in an image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Result is the outcome of ingesting one upload. A non-empty Warning means
// the upload contributed no context.
type Result struct {
	Kind    Kind   `json:"kind"`
	Label   string `json:"label"`
	Text    string `json:"text"`
	Warning string `json:"warning,omitempty"`
}

// Ingestor turns uploaded PDFs and images into summarized context.
type Ingestor struct {
	log        *slog.Logger
	summarizer summarizer.Summarizer
	sentences  int
	recognizer Recognizer
}

// New builds an Ingestor. recognizer may be nil, in which case image uploads
// produce a warning instead of text.
func New(log *slog.Logger, sum summarizer.Summarizer, sentences int, recognizer Recognizer) *Ingestor {
	if sentences <= 0 {
		sentences = 5
	}
	return &Ingestor{
		log:        log,
		summarizer: sum,
		sentences:  sentences,
		recognizer: recognizer,
	}
}

// Ingest extracts and summarizes the text of data. It never fails: every
// problem, including a panic inside a parser, is reported through
// Result.Warning and leaves Result.Text empty.
func (in *Ingestor) Ingest(ctx context.Context, kind Kind, data []byte) (res Result) {
	res = Result{Kind: kind, Label: kind.Label()}
	log := in.log.With("kind", kind, "bytes", len(data))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("extraction panicked", "panic", rec)
			res.Text = ""
			res.Warning = fmt.Sprintf("could not read the %s: the file appears to be corrupt", kind.noun())
		}
	}()

	raw, err := in.extract(ctx, kind, data)
	if err != nil {
		log.Warn("extraction failed", "err", err)
		res.Warning = fmt.Sprintf("could not read the %s: %v", kind.noun(), err)
		return res
	}
	if strings.TrimSpace(raw) == "" {
		log.Info("no extractable text")
		res.Warning = fmt.Sprintf("no extractable text found in the %s", kind.noun())
		return res
	}

	res.Text = in.summarizer.Summarize(raw, in.sentences)
	log.Debug("context extracted", "raw_chars", len(raw), "summary_chars", len(res.Text))
	return res
}

func (in *Ingestor) extract(ctx context.Context, kind Kind, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	mtype := mimetype.Detect(data)
	switch kind {
	case KindPDF:
		if !mtype.Is("application/pdf") {
			return "", fmt.Errorf("%w: expected PDF, got %s", ErrUnsupportedType, mtype.String())
		}
		return extractPDF(data)
	case KindImage:
		if !mtype.Is("image/png") && !mtype.Is("image/jpeg") {
			return "", fmt.Errorf("%w: expected PNG or JPEG, got %s", ErrUnsupportedType, mtype.String())
		}
		if in.recognizer == nil {
			return "", ErrOCRDisabled
		}
		return in.recognizer.Recognize(ctx, data, mtype.String())
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, kind)
	}
}

// WithRecognizer returns a copy of the Ingestor that uses r for images.
func (in *Ingestor) WithRecognizer(r Recognizer) *Ingestor {
	cp := *in
	cp.recognizer = r
	return &cp
}

package qa

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"quantumquery/internal/cache"
	"quantumquery/internal/events"
	"quantumquery/internal/ingest"
	"quantumquery/internal/ingest/pdftest"
	"quantumquery/internal/llm"
	"quantumquery/internal/summarizer"
)

type fixture struct {
	client     *llm.MockClient
	recognizer *ingest.MockRecognizer
	cache      *cache.MockCache
	publisher  *events.MockPublisher
	keys       []string
	svc        *Service
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		client:     new(llm.MockClient),
		recognizer: new(ingest.MockRecognizer),
		cache:      new(cache.MockCache),
		publisher:  new(events.MockPublisher),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	in := ingest.New(log, summarizer.Truncate{}, 5, nil)
	clients := func(key string) (llm.Client, error) {
		f.keys = append(f.keys, key)
		return f.client, nil
	}
	recognizers := func(string) ingest.Recognizer { return f.recognizer }
	f.svc = NewService(log, in, f.cache, f.publisher, clients, recognizers, opts)
	t.Cleanup(func() {
		f.client.AssertExpectations(t)
		f.recognizer.AssertExpectations(t)
		f.cache.AssertExpectations(t)
		f.publisher.AssertExpectations(t)
	})
	return f
}

func (f *fixture) expectPublish() {
	f.publisher.On("Publish", mock.Anything, mock.AnythingOfType("events.Interaction")).Return(nil).Once()
}

func blankPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestAskBareQuestion(t *testing.T) {
	f := newFixture(t, Options{DefaultAPIKey: "env-key"})
	f.client.On("Complete", mock.Anything, "What is superposition?").
		Return(llm.Answer{Text: "A linear combination of states.", Model: "scout"}, nil).Once()
	f.expectPublish()

	resp, err := f.svc.Ask(context.Background(), Request{Question: "What is superposition?"})
	require.NoError(t, err)

	assert.True(t, resp.OK)
	assert.Equal(t, "A linear combination of states.", resp.Answer)
	assert.Equal(t, "scout", resp.Model)
	assert.Empty(t, resp.Warnings)
	assert.Empty(t, resp.Contexts)
	assert.Equal(t, []string{"env-key"}, f.keys)
}

func TestAskRequestKeyOverridesConfiguredKey(t *testing.T) {
	f := newFixture(t, Options{DefaultAPIKey: "env-key"})
	f.client.On("Complete", mock.Anything, "Q?").Return(llm.Answer{Text: "A"}, nil).Once()
	f.expectPublish()

	_, err := f.svc.Ask(context.Background(), Request{Question: "Q?", APIKey: " form-key "})
	require.NoError(t, err)
	assert.Equal(t, []string{"form-key"}, f.keys)
}

func TestAskValidation(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		req     Request
		wantErr error
	}{
		{"missing credential", Options{}, Request{Question: "Q?"}, ErrMissingCredential},
		{"credential checked before question", Options{}, Request{}, ErrMissingCredential},
		{"missing question", Options{DefaultAPIKey: "k"}, Request{}, ErrMissingQuestion},
		{"blank question", Options{}, Request{APIKey: "k", Question: "   "}, ErrMissingQuestion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.opts)
			_, err := f.svc.Ask(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.keys, "no client should be built")
		})
	}
}

func TestAskWithPDFContext(t *testing.T) {
	f := newFixture(t, Options{DefaultAPIKey: "k"})
	want := "[PDF Context]\nA. B. C. D. E.\n\nQuestion:\nSummarize this."
	f.client.On("Complete", mock.Anything, want).Return(llm.Answer{Text: "Letters."}, nil).Once()
	f.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e events.Interaction) bool {
		return e.HasPDF && !e.HasImage && e.OK
	})).Return(nil).Once()

	resp, err := f.svc.Ask(context.Background(), Request{
		Question: "Summarize this.",
		PDF:      pdftest.Build("A. B. C. D. E. F."),
	})
	require.NoError(t, err)
	require.Len(t, resp.Contexts, 1)
	assert.Equal(t, "A. B. C. D. E.", resp.Contexts[0].Text)
	assert.True(t, resp.OK)
}

func TestAskImageWithoutText(t *testing.T) {
	f := newFixture(t, Options{DefaultAPIKey: "k"})
	img := blankPNG(t)
	f.recognizer.On("Recognize", mock.Anything, img, "image/png").Return("", nil).Once()
	f.client.On("Complete", mock.Anything, "What does it say?").Return(llm.Answer{Text: "Nothing."}, nil).Once()
	f.expectPublish()

	resp, err := f.svc.Ask(context.Background(), Request{Question: "What does it say?", Image: img})
	require.NoError(t, err)

	assert.Empty(t, resp.Contexts)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "no extractable text")
	assert.True(t, resp.OK)
}

func TestAskPDFAndImageInFixedOrder(t *testing.T) {
	f := newFixture(t, Options{DefaultAPIKey: "k"})
	img := blankPNG(t)
	f.recognizer.On("Recognize", mock.Anything, img, "image/png").Return("H|psi> = E|psi>.", nil).Once()
	want := "[PDF Context]\nSchrodinger wrote it down.\n\n[Image Context]\nH|psi> = E|psi>.\n\nQuestion:\nExplain."
	f.client.On("Complete", mock.Anything, want).Return(llm.Answer{Text: "ok"}, nil).Once()
	f.expectPublish()

	resp, err := f.svc.Ask(context.Background(), Request{
		Question: "Explain.",
		Image:    img,
		PDF:      pdftest.Build("Schrodinger wrote it down."),
	})
	require.NoError(t, err)
	require.Len(t, resp.Contexts, 2)
	assert.Equal(t, ingest.KindPDF, resp.Contexts[0].Kind)
	assert.Equal(t, ingest.KindImage, resp.Contexts[1].Kind)
}

func TestAskCorruptPDFContinuesWithoutContext(t *testing.T) {
	f := newFixture(t, Options{DefaultAPIKey: "k"})
	f.client.On("Complete", mock.Anything, "Q?").Return(llm.Answer{Text: "A"}, nil).Once()
	f.expectPublish()

	resp, err := f.svc.Ask(context.Background(), Request{Question: "Q?", PDF: []byte("%PDF-1.7 broken")})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "could not read the PDF")
}

func TestAskAPIError(t *testing.T) {
	f := newFixture(t, Options{DefaultAPIKey: "bad"})
	f.client.On("Complete", mock.Anything, "Q?").
		Return(llm.Answer{}, &llm.APIError{StatusCode: 401, Body: `{"error":"invalid key"}`}).Once()
	f.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e events.Interaction) bool {
		return !e.OK && e.StatusCode == 401
	})).Return(nil).Once()

	resp, err := f.svc.Ask(context.Background(), Request{Question: "Q?"})
	require.NoError(t, err)

	assert.False(t, resp.OK)
	assert.Equal(t, `Error: {"error":"invalid key"}`, resp.Answer)
	assert.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, `{"error":"invalid key"}`, resp.ErrorBody)
}

func TestAskTransportError(t *testing.T) {
	f := newFixture(t, Options{DefaultAPIKey: "k"})
	f.client.On("Complete", mock.Anything, "Q?").Return(llm.Answer{}, errors.New("dial tcp: refused")).Once()
	f.expectPublish()

	resp, err := f.svc.Ask(context.Background(), Request{Question: "Q?"})
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, "Error: dial tcp: refused", resp.Answer)
	assert.Zero(t, resp.StatusCode)
}

func TestAskMergesMathBlocks(t *testing.T) {
	f := newFixture(t, Options{DefaultAPIKey: "k", MergeMath: true})
	f.client.On("Complete", mock.Anything, "Q?").Return(llm.Answer{Text: "$$a$$\n$$b$$"}, nil).Once()
	f.expectPublish()

	resp, err := f.svc.Ask(context.Background(), Request{Question: "Q?"})
	require.NoError(t, err)
	assert.Equal(t, "$$a\nb$$", resp.Answer)
}

func TestAskPublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t, Options{DefaultAPIKey: "k"})
	f.client.On("Complete", mock.Anything, "Q?").Return(llm.Answer{Text: "A"}, nil).Once()
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("nats down")).Times(publishAttempts)

	resp, err := f.svc.Ask(context.Background(), Request{Question: "Q?"})
	require.NoError(t, err)
	assert.True(t, resp.OK)
}

func TestAskUsesStoredContext(t *testing.T) {
	f := newFixture(t, Options{DefaultAPIKey: "k"})
	stored := []ingest.Result{{Kind: ingest.KindPDF, Label: ingest.KindPDF.Label(), Text: "Stored summary."}}
	f.cache.On("GetContexts", mock.Anything, "ctx-1").Return(stored, nil).Once()
	f.client.On("Complete", mock.Anything, "[PDF Context]\nStored summary.\n\nQuestion:\nQ?").
		Return(llm.Answer{Text: "A"}, nil).Once()
	f.expectPublish()

	resp, err := f.svc.Ask(context.Background(), Request{Question: "Q?", ContextID: "ctx-1"})
	require.NoError(t, err)
	assert.Empty(t, resp.Warnings)
}

func TestAskFreshUploadReplacesStoredContext(t *testing.T) {
	f := newFixture(t, Options{DefaultAPIKey: "k"})
	stored := []ingest.Result{{Kind: ingest.KindPDF, Label: ingest.KindPDF.Label(), Text: "Old."}}
	f.cache.On("GetContexts", mock.Anything, "ctx-1").Return(stored, nil).Once()
	f.client.On("Complete", mock.Anything, "[PDF Context]\nNew.\n\nQuestion:\nQ?").
		Return(llm.Answer{Text: "A"}, nil).Once()
	f.expectPublish()

	_, err := f.svc.Ask(context.Background(), Request{Question: "Q?", ContextID: "ctx-1", PDF: pdftest.Build("New.")})
	require.NoError(t, err)
}

func TestAskExpiredContext(t *testing.T) {
	f := newFixture(t, Options{DefaultAPIKey: "k"})
	f.cache.On("GetContexts", mock.Anything, "gone").Return(nil, nil).Once()
	f.client.On("Complete", mock.Anything, "Q?").Return(llm.Answer{Text: "A"}, nil).Once()
	f.expectPublish()

	resp, err := f.svc.Ask(context.Background(), Request{Question: "Q?", ContextID: "gone"})
	require.NoError(t, err)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "expired")
}

func TestExtract(t *testing.T) {
	f := newFixture(t, Options{DefaultAPIKey: "k", ContextTTL: time.Minute})
	f.cache.On("SetContexts", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(cs []ingest.Result) bool {
		return len(cs) == 1 && cs[0].Text == "A. B. C. D. E."
	}), time.Minute).Return(nil).Once()

	out, err := f.svc.Extract(context.Background(), ExtractRequest{PDF: pdftest.Build("A. B. C. D. E. F.")})
	require.NoError(t, err)
	assert.NotEmpty(t, out.ContextID)
	require.Len(t, out.Contexts, 1)
	assert.Empty(t, out.Warnings)
}

func TestExtractNothingUsable(t *testing.T) {
	f := newFixture(t, Options{})
	img := blankPNG(t)

	// Without any key the image cannot be read, and nothing is stored.
	out, err := f.svc.Extract(context.Background(), ExtractRequest{Image: img})
	require.NoError(t, err)
	assert.Empty(t, out.ContextID)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "disabled")
}

func TestExtractStoreFailure(t *testing.T) {
	f := newFixture(t, Options{DefaultAPIKey: "k", ContextTTL: time.Minute})
	f.cache.On("SetContexts", mock.Anything, mock.Anything, mock.Anything, time.Minute).Return(errors.New("redis down")).Once()

	out, err := f.svc.Extract(context.Background(), ExtractRequest{PDF: pdftest.Build("Hello.")})
	require.NoError(t, err)
	assert.Empty(t, out.ContextID)
	assert.Len(t, out.Warnings, 1)
}

func TestExtractRequiresUpload(t *testing.T) {
	f := newFixture(t, Options{DefaultAPIKey: "k"})
	_, err := f.svc.Extract(context.Background(), ExtractRequest{})
	assert.ErrorIs(t, err, ErrNoUploads)
}

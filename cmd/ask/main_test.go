package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantumquery/internal/config"
	"quantumquery/internal/ingest/pdftest"
)

func testConfig(url string) config.Config {
	return config.Config{
		LogLevel:          "error",
		APIKey:            "env-key",
		CompletionURL:     url,
		LLMModel:          "test-model",
		MathStyle:         "plain",
		CompletionTimeout: time.Second,
		OCRProvider:       "none",
		SummaryStrategy:   "truncate",
		SummarySentences:  5,
		CacheProvider:     "memory",
		ContextTTL:        time.Minute,
		EventsProvider:    "none",
	}
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","created":1,"model":"test-model","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%q}}]}`, content)
}

func TestAsk(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotPrompt = body.Messages[len(body.Messages)-1].Content

		writeCompletion(w, "Forty-two.")
	}))
	defer srv.Close()

	pdfPath := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(pdfPath, pdftest.Build("The answer is forty-two."), 0o600))

	var stdout, stderr bytes.Buffer
	cli := CLI{Question: "What is the answer?", PDF: pdfPath}
	err := cli.ask(context.Background(), testConfig(srv.URL), &stdout, &stderr)

	require.NoError(t, err)
	assert.Equal(t, "Forty-two.\n", stdout.String())
	assert.Equal(t, "[PDF Context]\nThe answer is forty-two.\n\nQuestion:\nWhat is the answer?", gotPrompt)
}

func TestAskRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid key"}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	cli := CLI{Question: "Q?", APIKey: "bad-key"}
	err := cli.ask(context.Background(), testConfig(srv.URL), &stdout, &stderr)

	assert.ErrorIs(t, err, errRemote)
	assert.Equal(t, "Error: {\"error\":\"invalid key\"}\n", stdout.String())
}

func TestAskWarnsOnUnreadableImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, "ok")
	}))
	defer srv.Close()

	imgPath := filepath.Join(t.TempDir(), "note.png")
	require.NoError(t, os.WriteFile(imgPath, []byte("not really a png"), 0o600))

	var stdout, stderr bytes.Buffer
	cli := CLI{Question: "Q?", Image: imgPath}
	require.NoError(t, cli.ask(context.Background(), testConfig(srv.URL), &stdout, &stderr))

	assert.Contains(t, stderr.String(), "warning: could not read the image")
	assert.Equal(t, "ok\n", stdout.String())
}

func TestAskMissingKey(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.APIKey = ""

	var stdout, stderr bytes.Buffer
	err := CLI{Question: "Q?"}.ask(context.Background(), cfg, &stdout, &stderr)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API key")
	assert.Empty(t, stdout.String())
}

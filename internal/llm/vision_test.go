package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVisionServer(t *testing.T, content string, gotBody *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		*gotBody = string(raw)
		resp := map[string]any{
			"id":      "v1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "vision-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVisionRecognizerTranscribes(t *testing.T) {
	var body string
	srv := newVisionServer(t, "  E = mc^2  ", &body)

	rec, err := NewVisionRecognizer("gsk-secret", srv.URL+"/", "vision-model")
	require.NoError(t, err)

	text, err := rec.Recognize(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "E = mc^2", text)
	assert.True(t, strings.Contains(body, "data:image/png;base64,iVBORw=="), "image should be sent as a data URL: %s", body)
	assert.Contains(t, body, `"vision-model"`)
}

func TestVisionRecognizerNoText(t *testing.T) {
	var body string
	srv := newVisionServer(t, noTextMarker, &body)

	rec, err := NewVisionRecognizer("gsk-secret", srv.URL+"/", "vision-model")
	require.NoError(t, err)

	text, err := rec.Recognize(context.Background(), []byte{0xff, 0xd8, 0xff}, "image/jpeg")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestNewVisionRecognizerRequiresKey(t *testing.T) {
	_, err := NewVisionRecognizer("", "", "")
	assert.Error(t, err)
}

package remote

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/recognition"
)

func testImage() document.NormalizedImage {
	return document.NormalizedImage{Image: image.NewGray(image.Rect(0, 0, 160, 100))}
}

func TestEngine_Recognize(t *testing.T) {
	var got recognizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"width":160,"height":100,"tokens":[{"text":"DOB","rect":[10,10,30,12],"confidence":0.9}]}`))
	}))
	defer srv.Close()

	e, err := New(srv.URL, WithAPIKey("secret"), WithLanguages("eng", "deu"))
	require.NoError(t, err)
	tokens, err := e.Recognize(context.Background(), testImage())
	require.NoError(t, err)

	require.Len(t, tokens, 1)
	assert.Equal(t, "DOB", tokens[0].Text)
	assert.Equal(t, 0.9, tokens[0].Confidence)
	assert.Equal(t, 160, got.Width)
	assert.Equal(t, 100, got.Height)
	assert.Equal(t, []string{"eng", "deu"}, got.Languages)
	assert.NotEmpty(t, got.Image)
}

func TestEngine_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusInternalServerError, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			e, err := New(srv.URL)
			require.NoError(t, err)
			_, err = e.Recognize(context.Background(), testImage())
			require.Error(t, err)
			assert.Equal(t, tt.retryable, recognition.IsRetryable(err))
		})
	}
}

func TestEngine_TransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e, err := New(url, WithHTTPClient(&http.Client{Timeout: time.Second}))
	require.NoError(t, err)
	_, err = e.Recognize(context.Background(), testImage())
	assert.ErrorIs(t, err, recognition.ErrUnavailable)
}

func TestEngine_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{broken`))
	}))
	defer srv.Close()

	e, err := New(srv.URL)
	require.NoError(t, err)
	_, err = e.Recognize(context.Background(), testImage())
	require.Error(t, err)
	assert.False(t, recognition.IsRetryable(err))
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}

func TestEngine_ThroughAdapterRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"text":"OK","rect":[0,0,20,10]}]`))
	}))
	defer srv.Close()

	e, err := New(srv.URL)
	require.NoError(t, err)
	a, err := recognition.NewAdapter(e, recognition.DefaultConfig())
	require.NoError(t, err)
	a.WithSleep(func(context.Context, time.Duration) error { return nil })

	tokens, err := a.Recognize(context.Background(), testImage())
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
	assert.Equal(t, 3, calls)
}

package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTEIServer answers /embed with one [len(text), 1] vector per input.
func newTEIServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		if status != http.StatusOK {
			http.Error(w, "model overloaded", status)
			return
		}

		var req struct {
			Inputs   json.RawMessage `json:"inputs"`
			Truncate bool            `json:"truncate"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Truncate)

		var inputs []string
		if err := json.Unmarshal(req.Inputs, &inputs); err != nil {
			var single string
			require.NoError(t, json.Unmarshal(req.Inputs, &single))
			inputs = []string{single}
		}

		out := make([][]float32, len(inputs))
		for i, in := range inputs {
			out[i] = []float32{float32(len(in)), 1}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewService(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "valid", config: Config{BaseURL: "http://localhost:8080", Model: "BAAI/bge-small-en-v1.5"}},
		{name: "trailing slash", config: Config{BaseURL: "http://localhost:8080/"}},
		{name: "empty base URL", config: Config{Model: "test"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(tt.config)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "http://localhost:8080", svc.config.BaseURL)
		})
	}
}

func TestService_EmbedDocuments(t *testing.T) {
	srv := newTEIServer(t, http.StatusOK)
	svc, err := NewService(Config{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"a", "abc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {3, 1}}, vectors)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestService_EmbedQuery(t *testing.T) {
	srv := newTEIServer(t, http.StatusOK)
	svc, err := NewService(Config{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	vector, err := svc.EmbedQuery(context.Background(), "four")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1}, vector)

	_, err = svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestService_ErrorStatus(t *testing.T) {
	srv := newTEIServer(t, http.StatusServiceUnavailable)
	svc, err := NewService(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "text")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "503")
}

func TestService_ContextCanceled(t *testing.T) {
	srv := newTEIServer(t, http.StatusOK)
	svc, err := NewService(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.EmbedDocuments(ctx, []string{"text"})
	assert.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("VECFS_EMBEDDINGS_BASE_URL", "")
		t.Setenv("VECFS_EMBEDDINGS_MODEL", "")
		got := ConfigFromEnv()
		assert.Equal(t, "http://localhost:8080", got.BaseURL)
		assert.Equal(t, "BAAI/bge-small-en-v1.5", got.Model)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("VECFS_EMBEDDINGS_BASE_URL", "http://custom:9090")
		t.Setenv("VECFS_EMBEDDINGS_MODEL", "custom-model")
		t.Setenv("VECFS_EMBEDDINGS_API_KEY", "secret")
		got := ConfigFromEnv()
		assert.Equal(t, Config{BaseURL: "http://custom:9090", Model: "custom-model", APIKey: "secret"}, got)
	})
}

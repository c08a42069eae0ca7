package huggingface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedder_Embed(t *testing.T) {
	tests := []struct {
		name     string
		response string
		status   int
		want     []float32
		wantErr  string
	}{
		{"Flat Vector", `[0.1, 0.2, 0.3]`, http.StatusOK, []float32{0.1, 0.2, 0.3}, ""},
		{"Batched Vectors", `[[0.4, 0.5], [9, 9]]`, http.StatusOK, []float32{0.4, 0.5}, ""},
		{"Token Vectors", `[[[1, 2], [3, 4]]]`, http.StatusOK, []float32{2, 3}, ""},
		{"Model Loading", `{"error":"Model is currently loading"}`, http.StatusServiceUnavailable, nil, "503"},
		{"Unexpected Shape", `{"foo":"bar"}`, http.StatusOK, nil, "unexpected response"},
		{"Empty Vector", `[]`, http.StatusOK, nil, "empty embedding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/models/"+DefaultModel, r.URL.Path)
				assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))

				var req map[string]interface{}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "hello", req["inputs"])

				w.WriteHeader(tt.status)
				w.Write([]byte(tt.response))
			}))
			defer ts.Close()

			e, err := NewEmbedder(Config{APIKey: "hf_test", BaseURL: ts.URL})
			require.NoError(t, err)

			got, err := e.Embed(context.Background(), "hello")
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, got, 1e-6)
		})
	}
}

func TestNewEmbedder_Defaults(t *testing.T) {
	e, err := NewEmbedder(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultDimension, e.Dimension())
	assert.Equal(t, DefaultBaseURL, e.baseURL)
	assert.Equal(t, "huggingface", e.Name())

	_, err = NewEmbedder(Config{})
	assert.Error(t, err)
}

package database

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"admission-portal/internal/common/config"
	apperrors "admission-portal/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewElasticsearch_RequiresAddress(t *testing.T) {
	_, err := NewElasticsearch(config.ElasticsearchConfig{})
	assert.Error(t, err)
}

func TestElasticsearchClient_Ping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"green", http.StatusOK, `{"status":"green"}`, false},
		{"yellow", http.StatusOK, `{"status":"yellow"}`, false},
		{"red", http.StatusOK, `{"status":"red"}`, true},
		{"error status", http.StatusInternalServerError, `{}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := healthServer(t, tt.status, tt.body)
			c, err := NewElasticsearch(config.ElasticsearchConfig{URL: srv.URL})
			require.NoError(t, err)

			err = c.Ping(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrResourceUnavailable)
				return
			}
			assert.NoError(t, err)
		})
	}
}

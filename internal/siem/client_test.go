package siem

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshield-mcp/dshield-mcp/internal/config"
	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
	"github.com/dshield-mcp/dshield-mcp/internal/telemetry"
)

func stubClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(config.ElasticsearchConfig{URL: srv.URL, TimeoutSec: 5}, dserrors.RetryPolicy{})
	require.NoError(t, err)
	return c
}

func TestSearchCountsQueries(t *testing.T) {
	ok := stubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"took":1,"hits":{"total":{"value":0},"hits":[]}}`))
	})
	failing := stubClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	})

	okBefore := testutil.ToFloat64(telemetry.SIEMQueries.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(telemetry.SIEMQueries.WithLabelValues("error"))

	resp, err := ok.Search(context.Background(), []string{"cowrie-*"}, map[string]any{"size": 0})
	require.NoError(t, err)
	assert.Zero(t, resp.Hits.Total.Value)

	_, err = failing.Search(context.Background(), []string{"cowrie-*"}, map[string]any{"size": 0})
	require.Error(t, err)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(telemetry.SIEMQueries.WithLabelValues("ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(telemetry.SIEMQueries.WithLabelValues("error")))
}

func TestCountCountsQueries(t *testing.T) {
	c := stubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"count":7}`))
	})

	before := testutil.ToFloat64(telemetry.SIEMQueries.WithLabelValues("ok"))
	total, err := c.Count(context.Background(), []string{"cowrie-*"}, map[string]any{"match_all": map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.SIEMQueries.WithLabelValues("ok")))
}

// Package siem implements the query engine against the Elasticsearch-backed
// SIEM: query building, size-aware optimization, pagination, session
// streaming and data-availability diagnostics.
package siem

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"github.com/dshield-mcp/dshield-mcp/internal/config"
	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
	"github.com/dshield-mcp/dshield-mcp/internal/telemetry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client wraps the Elasticsearch client with the small API surface the
// engine needs.
type Client struct {
	es      *elasticsearch.Client
	timeout time.Duration
	retry   dserrors.RetryPolicy
}

// NewClient builds a SIEM client from configuration.
func NewClient(cfg config.ElasticsearchConfig, retry dserrors.RetryPolicy) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	if cfg.VerifyTLS != nil && !*cfg.VerifyTLS {
		esCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	} else if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, dserrors.Configf("read ca_cert %s: %v", cfg.CACert, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, dserrors.Configf("ca_cert %s contains no certificates", cfg.CACert)
		}
		esCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		}
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, dserrors.External("siem.connect", "elasticsearch", err)
	}
	return &Client{
		es:      es,
		timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		retry:   retry,
	}, nil
}

// SearchResponse is the subset of the _search response the engine reads.
type SearchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []Hit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]AggResult `json:"aggregations,omitempty"`
}

// Hit is one search hit.
type Hit struct {
	ID     string         `json:"_id"`
	Index  string         `json:"_index"`
	Source map[string]any `json:"_source"`
	Sort   []any          `json:"sort,omitempty"`
}

// AggResult is one named aggregation result.
type AggResult struct {
	Buckets []AggBucket `json:"buckets,omitempty"`
	Value   *float64    `json:"value,omitempty"`
}

// AggBucket is one terms or histogram bucket.
type AggBucket struct {
	Key         any    `json:"key"`
	KeyAsString string `json:"key_as_string,omitempty"`
	DocCount    int64  `json:"doc_count"`
}

// Search executes a _search request against the given indices.
func (c *Client) Search(ctx context.Context, indices []string, body map[string]any) (*SearchResponse, error) {
	var out *SearchResponse
	err := dserrors.Retry(ctx, c.retry, "siem.search", func() error {
		resp, err := c.do(ctx, indices, body, true)
		out = resp
		return err
	})
	telemetry.SIEMQueries.WithLabelValues(queryStatus(err)).Inc()
	return out, err
}

func queryStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (c *Client) do(ctx context.Context, indices []string, body map[string]any, trackTotal bool) (*SearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	buf, err := encodeBody(body)
	if err != nil {
		return nil, dserrors.Internal("siem.search", err)
	}
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(indices...),
		c.es.Search.WithBody(buf),
		c.es.Search.WithTrackTotalHits(trackTotal),
		c.es.Search.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return nil, classifyTransportErr("siem.search", ctx, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, apiError("siem.search", res.StatusCode, res.Body)
	}
	var parsed SearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, dserrors.External("siem.search", "elasticsearch", fmt.Errorf("decode response: %w", err))
	}
	return &parsed, nil
}

// Count executes a _count request with the same filter set as a search.
func (c *Client) Count(ctx context.Context, indices []string, query map[string]any) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var total int64
	err := dserrors.Retry(ctx, c.retry, "siem.count", func() error {
		buf, err := encodeBody(map[string]any{"query": query})
		if err != nil {
			return dserrors.Internal("siem.count", err)
		}
		res, err := c.es.Count(
			c.es.Count.WithContext(ctx),
			c.es.Count.WithIndex(indices...),
			c.es.Count.WithBody(buf),
			c.es.Count.WithIgnoreUnavailable(true),
		)
		if err != nil {
			return classifyTransportErr("siem.count", ctx, err)
		}
		defer res.Body.Close()
		if res.IsError() {
			return apiError("siem.count", res.StatusCode, res.Body)
		}
		var parsed struct {
			Count int64 `json:"count"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			return dserrors.External("siem.count", "elasticsearch", err)
		}
		total = parsed.Count
		return nil
	})
	telemetry.SIEMQueries.WithLabelValues(queryStatus(err)).Inc()
	return total, err
}

// IndexInfo is one row from _cat/indices.
type IndexInfo struct {
	Index     string `json:"index"`
	Health    string `json:"health"`
	DocsCount string `json:"docs.count"`
	StoreSize string `json:"store.size"`
}

// ListIndices returns the cluster's indices.
func (c *Client) ListIndices(ctx context.Context) ([]IndexInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.es.Cat.Indices(
		c.es.Cat.Indices.WithContext(ctx),
		c.es.Cat.Indices.WithFormat("json"),
	)
	if err != nil {
		return nil, classifyTransportErr("siem.list_indices", ctx, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, apiError("siem.list_indices", res.StatusCode, res.Body)
	}
	var infos []IndexInfo
	if err := json.NewDecoder(res.Body).Decode(&infos); err != nil {
		return nil, dserrors.External("siem.list_indices", "elasticsearch", err)
	}
	return infos, nil
}

// GetMapping returns the field mapping of one index.
func (c *Client) GetMapping(ctx context.Context, index string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.es.Indices.GetMapping(
		c.es.Indices.GetMapping.WithContext(ctx),
		c.es.Indices.GetMapping.WithIndex(index),
	)
	if err != nil {
		return nil, classifyTransportErr("siem.get_mapping", ctx, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, apiError("siem.get_mapping", res.StatusCode, res.Body)
	}
	var parsed map[string]any
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, dserrors.External("siem.get_mapping", "elasticsearch", err)
	}
	return parsed, nil
}

// ClusterHealth returns the cluster health document.
func (c *Client) ClusterHealth(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return nil, classifyTransportErr("siem.cluster_health", ctx, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, apiError("siem.cluster_health", res.StatusCode, res.Body)
	}
	var parsed map[string]any
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, dserrors.External("siem.cluster_health", "elasticsearch", err)
	}
	return parsed, nil
}

// IndexDocument writes one document with an explicit id. Used by the
// enrichment writeback; failures are the caller's to log, not to surface.
func (c *Client) IndexDocument(ctx context.Context, index, id string, doc map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	buf, err := encodeBody(doc)
	if err != nil {
		return dserrors.Internal("siem.index_document", err)
	}
	res, err := c.es.Index(
		index,
		buf,
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(id),
	)
	if err != nil {
		return classifyTransportErr("siem.index_document", ctx, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apiError("siem.index_document", res.StatusCode, res.Body)
	}
	return nil
}

func encodeBody(body map[string]any) (*bytes.Reader, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

func classifyTransportErr(op string, ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return dserrors.Timeoutf(op, "elasticsearch call aborted: %v", ctx.Err())
	}
	return dserrors.External(op, "elasticsearch", err)
}

func apiError(op string, status int, body io.Reader) error {
	snippet, _ := io.ReadAll(io.LimitReader(body, 2048))
	log.Debug().Str("op", op).Int("status", status).Bytes("body", snippet).Msg("Elasticsearch error response")
	return dserrors.External(op, "elasticsearch",
		fmt.Errorf("status %d: %s", status, string(snippet))).WithStatusCode(status)
}

package graph

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spigell/talentflow/internal/utils"
	"go.uber.org/zap"
)

const (
	defaultNeptunePort = 8182
	neptunePath        = "/openCypher"
	contentEncoding    = "gzip"
	userAgent          = "spigell/talentflow"
	maxErrorBodyLength = 512
)

// Neptune talks to the openCypher HTTP endpoint of an Amazon Neptune cluster.
type Neptune struct {
	URL        string
	HTTPClient *http.Client
	UserAgent  string
	logger     *zap.Logger
}

type neptuneResponse struct {
	Results []any `json:"results"`
	Data    []any `json:"data"`
}

func NewNeptune(cfg NeptuneConfig, logger *zap.Logger) *Neptune {
	scheme := "https"
	if cfg.UseHTTPS != nil && !*cfg.UseHTTPS {
		scheme = "http"
	}

	port := cfg.Port
	if port == 0 {
		port = defaultNeptunePort
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)

	return &Neptune{
		URL: fmt.Sprintf("%s://%s:%d%s", scheme, endpoint, port, neptunePath),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		UserAgent: userAgent,
		logger:    logger,
	}
}

func (n *Neptune) Backend() string { return BackendNeptune }

// EnsureGraph is a no-op: Neptune is schema-less.
func (n *Neptune) EnsureGraph(context.Context) error { return nil }

func (n *Neptune) Close(context.Context) error {
	n.HTTPClient.CloseIdleConnections()
	return nil
}

func (n *Neptune) Run(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	form := url.Values{}
	form.Set("query", query)
	if len(params) > 0 {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode cypher params: %w", err)
		}
		form.Set("parameters", string(encoded))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}

	req = n.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.request(req, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == contentEncoding {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("bad status: %s: %s", resp.Status, utils.TruncateForLog(string(data), maxErrorBodyLength))
	}

	var response neptuneResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("decode neptune response: %w", err)
	}

	items := response.Results
	if items == nil {
		items = response.Data
	}

	rows := make([]Row, 0, len(items))
	for _, item := range items {
		rows = append(rows, unwrap(item))
	}

	return rows, nil
}

func (n *Neptune) request(req *http.Request, query string) (*http.Response, error) {
	n.logger.Debug("make request", zap.String("url", req.URL.String()), zap.String("query", compact(query)))
	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (n *Neptune) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("User-Agent", n.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

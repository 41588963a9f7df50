package subgraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/machinebox/graphql"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 512

	// graphQLErrPrefix starts the text of errors the server reported in the
	// response body.
	graphQLErrPrefix = "graphql: "
)

var (
	// ErrPoolNotFound is returned when the subgraph has no entity for a pool.
	ErrPoolNotFound = errors.New("pool not found in subgraph")
	// ErrGraphQL wraps errors reported in the GraphQL response body.
	ErrGraphQL = errors.New("graphql error")
)

// Options configures the subgraph client.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Client queries a Uniswap V3 subgraph over GraphQL.
type Client struct {
	endpoint string
	gql      *graphql.Client
	logger   *zap.Logger
	topPools *topPoolsCache
}

func NewClient(endpoint string, opts Options) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("subgraph endpoint is required")
	}
	httpClient := &http.Client{Timeout: opts.Timeout}
	if opts.HTTPClient != nil {
		*httpClient = *opts.HTTPClient
	} else if httpClient.Timeout <= 0 {
		httpClient.Timeout = defaultTimeout
	}
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient.Transport = statusTransport{base: base}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint: endpoint,
		gql:      graphql.NewClient(endpoint, graphql.WithHTTPClient(httpClient)),
		logger:   logger,
		topPools: newTopPoolsCache(),
	}, nil
}

// statusError is a non-200 reply from the endpoint.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// statusTransport turns non-200 replies into errors before the GraphQL
// client decodes the body.
type statusTransport struct {
	base http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}

// do runs a GraphQL query and decodes the data member into out.
func (c *Client) do(ctx context.Context, name, query string, vars map[string]interface{}, out interface{}) error {
	req := graphql.NewRequest(query)
	for k, v := range vars {
		req.Var(k, v)
	}

	start := time.Now()
	if err := c.gql.Run(ctx, req, out); err != nil {
		return queryError(name, err)
	}

	c.logger.Debug("subgraph query",
		zap.String("query", name),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func queryError(name string, err error) error {
	var (
		statusErr *statusError
		urlErr    *url.Error
	)
	switch {
	case errors.As(err, &statusErr):
		return fmt.Errorf("%s query: %w", name, statusErr)
	case errors.As(err, &urlErr), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("post %s query: %w", name, err)
	case strings.HasPrefix(err.Error(), graphQLErrPrefix):
		return fmt.Errorf("%s query: %w: %s", name, ErrGraphQL, strings.TrimPrefix(err.Error(), graphQLErrPrefix))
	default:
		return fmt.Errorf("decode %s response: %w", name, err)
	}
}

package jsonapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/domain/interfaces"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
	"github.com/secmon-lab/searchlist/pkg/utils/safe"
)

// ErrNotFound is returned for a missing entity
var ErrNotFound = interfaces.ErrNotFound

// ContentType is the JSON:API media type
const ContentType = "application/vnd.api+json"

// Client is an EntityStore talking to a JSON:API server. Filters are sent
// as filter[column:ilike]=pattern.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      string
}

var _ interfaces.EntityStore = &Client{}

type Option func(*Client)

// WithHTTPClient replaces the default client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithToken sends a bearer token with every request
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, goerr.Wrap(err, "invalid JSON:API base URL", goerr.V("url", baseURL))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, goerr.New("JSON:API base URL must be http or https", goerr.V("url", baseURL))
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type document struct {
	Data     json.RawMessage `json:"data"`
	Included []*model.Entity `json:"included,omitempty"`
	Errors   []apiError      `json:"errors,omitempty"`
}

type apiError struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (c *Client) endpoint(query url.Values, segments ...string) string {
	u := *c.baseURL
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u.Path = c.baseURL.Path + "/" + strings.Join(escaped, "/")
	u.RawPath = c.baseURL.EscapedPath() + "/" + strings.Join(escaped, "/")
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any) (*document, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request", goerr.V("url", endpoint))
	}
	req.Header.Set("Accept", ContentType)
	if body != nil {
		req.Header.Set("Content-Type", ContentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "request failed", goerr.V("method", method), goerr.V("url", endpoint))
	}
	defer safe.Close(ctx, resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read response", goerr.V("url", endpoint))
	}

	logging.From(ctx).Debug("JSON:API request",
		"method", method,
		"url", endpoint,
		"status", resp.StatusCode,
	)

	var doc document
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode response",
				goerr.V("url", endpoint), goerr.V("status", resp.StatusCode))
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, goerr.Wrap(ErrNotFound, "entity not found", goerr.V("url", endpoint))
	case resp.StatusCode >= 400:
		detail := http.StatusText(resp.StatusCode)
		if len(doc.Errors) > 0 {
			detail = fmt.Sprintf("%s: %s", doc.Errors[0].Title, doc.Errors[0].Detail)
		}
		return nil, goerr.New("JSON:API request failed",
			goerr.V("method", method),
			goerr.V("url", endpoint),
			goerr.V("status", resp.StatusCode),
			goerr.V("detail", detail))
	}
	return &doc, nil
}

func decodeOne(doc *document) (*model.Entity, error) {
	var e model.Entity
	if err := json.Unmarshal(doc.Data, &e); err != nil {
		return nil, goerr.Wrap(err, "failed to decode entity")
	}
	return &e, nil
}

func (c *Client) Get(ctx context.Context, typ, id string) (*model.Entity, error) {
	doc, err := c.do(ctx, http.MethodGet, c.endpoint(nil, typ, id), nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get entity", goerr.V("type", typ), goerr.V("id", id))
	}
	return decodeOne(doc)
}

// FilterKey is the query parameter of a column filter
func FilterKey(column string) string {
	return "filter[" + column + ":ilike]"
}

func (c *Client) List(ctx context.Context, typ string, opts ...interfaces.ListOption) (*model.EntityList, error) {
	cfg := interfaces.BuildListConfig(opts...)

	query := url.Values{}
	for _, f := range cfg.Filters() {
		query.Add(FilterKey(f.Column), f.Pattern)
	}
	if include := cfg.Include(); len(include) > 0 {
		query.Set("include", strings.Join(include, ","))
	}

	doc, err := c.do(ctx, http.MethodGet, c.endpoint(query, typ), nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list entities", goerr.V("type", typ))
	}

	result := &model.EntityList{Data: []*model.Entity{}, Included: doc.Included}
	if len(doc.Data) > 0 {
		if err := json.Unmarshal(doc.Data, &result.Data); err != nil {
			return nil, goerr.Wrap(err, "failed to decode entity list", goerr.V("type", typ))
		}
	}
	return result, nil
}

func (c *Client) Put(ctx context.Context, entity *model.Entity) (*model.Entity, error) {
	doc, err := c.do(ctx, http.MethodPost, c.endpoint(nil, entity.Type), map[string]any{"data": entity})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create entity", goerr.V("type", entity.Type))
	}
	return decodeOne(doc)
}

func (c *Client) Patch(ctx context.Context, entity *model.Entity) (*model.Entity, error) {
	body := map[string]any{"data": entity.Clean()}
	doc, err := c.do(ctx, http.MethodPatch, c.endpoint(nil, entity.Type, entity.ID), body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to patch entity", goerr.V("type", entity.Type), goerr.V("id", entity.ID))
	}
	return decodeOne(doc)
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

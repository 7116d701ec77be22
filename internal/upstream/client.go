// Package upstream is the Gemini REST client. Credentials are passed per
// call; the client itself holds no key material.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/solara-labs/prism-gateway/internal/apierror"
	"github.com/solara-labs/prism-gateway/internal/protocol"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com"

type Client struct {
	baseURL string
	http    *http.Client
}

// Options configures the upstream client.
type Options struct {
	BaseURL string
	// HeaderTimeout bounds the wait for upstream response headers. Full
	// request deadlines come from the caller's context so long streams
	// are not cut off.
	HeaderTimeout time.Duration
	MaxIdleConns  int
}

func New(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	maxIdle := opts.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 32
	}
	headerTimeout := opts.HeaderTimeout
	if headerTimeout == 0 {
		headerTimeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:          maxIdle,
				MaxIdleConnsPerHost:   maxIdle,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: headerTimeout,
				ForceAttemptHTTP2:     true,
			},
		},
	}
}

// Generate performs a non-streaming generateContent call.
func (c *Client) Generate(ctx context.Context, model, apiKey string, req *protocol.GenerateRequest) (*protocol.GenerateResponse, *apierror.Envelope) {
	resp, env := c.post(ctx, model, "generateContent", "", apiKey, req)
	if env != nil {
		return nil, env
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierror.TranslateNetwork(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, translateBody(resp.StatusCode, body)
	}

	var out protocol.GenerateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apierror.Internal("undecodable upstream response")
	}
	return &out, nil
}

// Stream performs a streaming streamGenerateContent call and returns the
// raw SSE body. The caller owns the body and must close it.
func (c *Client) Stream(ctx context.Context, model, apiKey string, req *protocol.GenerateRequest) (io.ReadCloser, *apierror.Envelope) {
	resp, env := c.post(ctx, model, "streamGenerateContent", "alt=sse", apiKey, req)
	if env != nil {
		return nil, env
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, translateBody(resp.StatusCode, body)
	}
	return resp.Body, nil
}

func (c *Client) post(ctx context.Context, model, method, query, apiKey string, req *protocol.GenerateRequest) (*http.Response, *apierror.Envelope) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, apierror.Internal("encode upstream request")
	}

	u := fmt.Sprintf("%s/v1beta/models/%s:%s", c.baseURL, url.PathEscape(model), method)
	if query != "" {
		u += "?" + query
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return nil, apierror.Internal("build upstream request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apierror.TranslateNetwork(err)
	}
	return resp, nil
}

// translateBody extracts Google's error message from the response body when
// present, then maps the status through the translation table.
func translateBody(status int, body []byte) *apierror.Envelope {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(body, &parsed); err == nil {
		msg = parsed.Error.Message
	}
	return apierror.Translate(status, msg)
}

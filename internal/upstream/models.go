package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/solara-labs/prism-gateway/internal/apierror"
)

// ListModels fetches the upstream model catalog and returns bare model
// names (the "models/" resource prefix stripped).
func (c *Client) ListModels(ctx context.Context, apiKey string) ([]string, *apierror.Envelope) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1beta/models", nil)
	if err != nil {
		return nil, apierror.Internal("build upstream request")
	}
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierror.TranslateNetwork(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierror.TranslateNetwork(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, translateBody(resp.StatusCode, body)
	}

	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apierror.Internal("undecodable upstream response")
	}

	names := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	return names, nil
}

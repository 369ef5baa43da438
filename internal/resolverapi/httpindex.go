package resolverapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/oauth2"
)

// IndexClient queries a PEP 503/691-style package index for the
// available versions of a project. A real Resolver implementation
// composes this with a solver; px's core never talks to an index
// directly.
type IndexClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewIndexClient builds a client against baseURL. When tokenSource is
// non-nil, requests carry an OAuth2 bearer token (private index auth);
// the underlying transport negotiates HTTP/2 where the server supports
// it.
func NewIndexClient(baseURL string, tokenSource oauth2.TokenSource) (*IndexClient, error) {
	transport := &http.Transport{}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("configuring http2 transport: %w", err)
	}

	var rt http.RoundTripper = transport
	if tokenSource != nil {
		rt = &oauth2.Transport{Source: tokenSource, Base: transport}
	}

	return &IndexClient{
		BaseURL: baseURL,
		HTTP:    &http.Client{Transport: rt},
	}, nil
}

// ProjectVersions is the subset of a PEP 691 JSON project page px needs.
type ProjectVersions struct {
	Name  string              `json:"name"`
	Files []ProjectVersionFile `json:"files"`
}

// ProjectVersionFile is one distributable artifact for a project.
type ProjectVersionFile struct {
	Filename string            `json:"filename"`
	URL      string            `json:"url"`
	Hashes   map[string]string `json:"hashes"`
}

// Versions fetches the available files for normalizedName from the
// index's simple API.
func (c *IndexClient) Versions(ctx context.Context, normalizedName string) (*ProjectVersions, error) {
	url := c.BaseURL + "/" + normalizedName + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.pypi.simple.v1+json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying index for %s: %w", normalizedName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("index returned %s for %s", resp.Status, normalizedName)
	}

	var pv ProjectVersions
	if err := json.NewDecoder(resp.Body).Decode(&pv); err != nil {
		return nil, fmt.Errorf("decoding index response for %s: %w", normalizedName, err)
	}
	return &pv, nil
}

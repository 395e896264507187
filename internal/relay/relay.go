// Package relay translates each inbound route into exactly one call against
// GitHub and hands the upstream JSON back untouched.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"issues-proxy-go/internal/client"
	"issues-proxy-go/internal/config"
	"issues-proxy-go/internal/model"
)

// allowedUpstreamHosts restricts which hosts the relay will forward to.
var allowedUpstreamHosts = map[string]bool{
	"github.com":     true,
	"api.github.com": true,
}

// pathParam matches {name} placeholders in route path templates.
var pathParam = regexp.MustCompile(`\{(\w+)\}`)

const (
	userAgent = "issues-proxy-go/1.0"

	acceptAPI   = "application/vnd.github+json"
	acceptOAuth = "application/json"
)

// Call is the per-request input to a route.
type Call struct {
	Ctx           context.Context
	Params        url.Values
	Authorization string
}

// Relay builds and sends upstream requests for the routing table.
type Relay struct {
	client   *client.GitHubClient
	cfg      *config.Config
	logger   *slog.Logger
	apiURL   *url.URL
	oauthURL *url.URL
}

// NewRelay creates a Relay. Both upstream base URLs must point at an
// allowlisted GitHub host.
func NewRelay(c *client.GitHubClient, cfg *config.Config, logger *slog.Logger) (*Relay, error) {
	r, err := newRelay(c, cfg, logger)
	if err != nil {
		return nil, err
	}
	for _, u := range []*url.URL{r.apiURL, r.oauthURL} {
		if !allowedUpstreamHosts[u.Hostname()] {
			return nil, fmt.Errorf("upstream host %q is not in the allowlist", u.Hostname())
		}
	}
	return r, nil
}

// NewRelayForTest creates a Relay without host allowlist validation.
// This is intended only for tests that use httptest servers on localhost.
func NewRelayForTest(c *client.GitHubClient, cfg *config.Config, logger *slog.Logger) (*Relay, error) {
	return newRelay(c, cfg, logger)
}

func newRelay(c *client.GitHubClient, cfg *config.Config, logger *slog.Logger) (*Relay, error) {
	apiURL, err := url.Parse(cfg.Upstream.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream api_base_url: %w", err)
	}
	oauthURL, err := url.Parse(cfg.Upstream.OAuthBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream oauth_base_url: %w", err)
	}

	return &Relay{
		client:   c,
		cfg:      cfg,
		logger:   logger.With("component", "relay"),
		apiURL:   apiURL,
		oauthURL: oauthURL,
	}, nil
}

// Forward validates the call, sends the single upstream request for route
// and returns the upstream JSON body with the upstream status.
//
// A non-2xx upstream response with a JSON body is relayed like a success.
// A non-2xx response with an empty or non-JSON body yields a *StatusError,
// and a 2xx response with a malformed body yields ErrMalformedJSON. An empty
// 2xx body is relayed with a nil Body.
func (r *Relay) Forward(route *Route, call *Call) (*model.RelayedResponse, error) {
	if err := Validate(route, call); err != nil {
		return nil, err
	}

	ur, err := r.build(route, call)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", route.Name, err)
	}

	r.logger.Debug("forwarding request",
		"route", route.Name,
		"method", ur.Method,
	)

	resp, err := r.client.Do(ur)
	if err != nil {
		return nil, fmt.Errorf("forward %s: %w", route.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readLimited(resp.Body, r.cfg.Upstream.MaxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", route.Name, err)
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	empty := len(bytes.TrimSpace(body)) == 0

	switch {
	case success && empty:
		return &model.RelayedResponse{StatusCode: resp.StatusCode}, nil
	case success && !json.Valid(body):
		return nil, fmt.Errorf("%s: %w", route.Name, ErrMalformedJSON)
	case !success && (empty || !json.Valid(body)):
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	return &model.RelayedResponse{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

// build assembles the outbound request for route. Validate must have passed.
func (r *Relay) build(route *Route, call *Call) (*model.UpstreamRequest, error) {
	upstreamURL := r.buildUpstreamURL(route, call.Params)

	header := make(http.Header)
	header.Set("User-Agent", userAgent)
	if route.Upstream == OAuth {
		header.Set("Accept", acceptOAuth)
	} else {
		header.Set("Accept", acceptAPI)
		if call.Authorization != "" {
			header.Set("Authorization", call.Authorization)
		}
	}

	var body io.Reader
	if route.Body != nil {
		payload, err := json.Marshal(route.Body(call.Params))
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(payload)
		header.Set("Content-Type", "application/json")
	}

	ctx := call.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	return &model.UpstreamRequest{
		Ctx:    ctx,
		Route:  route.Name,
		Method: route.Method,
		URL:    upstreamURL,
		Header: header,
		Body:   body,
	}, nil
}

func (r *Relay) buildUpstreamURL(route *Route, params url.Values) string {
	base := r.apiURL
	if route.Upstream == OAuth {
		base = r.oauthURL
	}

	u := *base
	prefix := strings.TrimSuffix(base.Path, "/")
	u.Path = prefix + expandPath(route.Path, params, false)
	u.RawPath = prefix + expandPath(route.Path, params, true)

	q := make(url.Values)
	if route.Query != nil {
		q = route.Query(params)
	}
	if route.Credentials {
		q.Set("client_id", r.cfg.OAuth.ClientID)
		q.Set("client_secret", r.cfg.OAuth.ClientSecret)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// expandPath substitutes {name} placeholders with parameter values,
// path-escaped when escape is set.
func expandPath(tmpl string, params url.Values, escape bool) string {
	return pathParam.ReplaceAllStringFunc(tmpl, func(m string) string {
		v := params.Get(m[1 : len(m)-1])
		if escape {
			return url.PathEscape(v)
		}
		return v
	})
}

// readLimited reads at most limit bytes; limit <= 0 means unbounded.
func readLimited(body io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(body)
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrResponseTooLarge
	}
	return data, nil
}

// Package atlas is a minimal client for the MongoDB Atlas management API.
package atlas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultBaseURL is the public Atlas endpoint.
	DefaultBaseURL = "https://cloud.mongodb.com/"

	acceptV2      = "application/vnd.atlas.2025-03-12+json"
	acceptJSON    = "application/json"
	tokenPath     = "api/oauth/token"
	authEventPath = "api/private/v1.0/telemetry/events"
	unauthPath    = "api/private/unauth/telemetry/events"

	requestTimeout        = 30 * time.Second
	maxHTTPErrorBodyBytes = 4096
)

// Options configures a Client.
type Options struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	UserAgent    string

	// HTTPClient is the base transport; http.DefaultClient when nil.
	HTTPClient *http.Client
}

// Client talks to the Atlas management API. When credentials are configured,
// requests are authenticated with an OAuth client-credentials token.
type Client struct {
	baseURL   *url.URL
	userAgent string
	authed    *http.Client
	unauthed  *http.Client
}

// New creates a Client. It never performs network I/O.
func New(opts Options) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid atlas base url %q", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	c := &Client{
		baseURL:   baseURL,
		userAgent: opts.UserAgent,
		unauthed:  httpClient,
	}

	if opts.ClientID != "" && opts.ClientSecret != "" {
		cc := clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     baseURL.ResolveReference(&url.URL{Path: tokenPath}).String(),
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		authed := cc.Client(tokenCtx)
		authed.Timeout = httpClient.Timeout
		c.authed = authed
	}

	return c, nil
}

// HasCredentials reports whether requests are authenticated.
func (c *Client) HasCredentials() bool {
	return c != nil && c.authed != nil
}

// SendEvents posts telemetry events. Without credentials, or when the authenticated
// call is rejected, events go to the unauthenticated endpoint instead.
func (c *Client) SendEvents(ctx context.Context, events any) error {
	if !c.HasCredentials() {
		return c.do(ctx, c.unauthed, http.MethodPost, unauthPath, acceptJSON, events, nil)
	}

	err := c.do(ctx, c.authed, http.MethodPost, authEventPath, acceptJSON, events, nil)
	if err == nil {
		return nil
	}
	if !shouldFallBackToUnauth(err) {
		return err
	}
	log.Debug().Err(err).Msg("Authenticated telemetry send rejected, retrying unauthenticated")
	return c.do(ctx, c.unauthed, http.MethodPost, unauthPath, acceptJSON, events, nil)
}

func shouldFallBackToUnauth(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized
	}
	var retrieveErr *oauth2.RetrieveError
	return errors.As(err, &retrieveErr)
}

// ListProjects returns the projects visible to the configured credentials.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var page paginated[Project]
	if err := c.authedDo(ctx, http.MethodGet, "api/atlas/v2/groups", nil, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// ListClusters returns the clusters of a project.
func (c *Client) ListClusters(ctx context.Context, projectID string) ([]Cluster, error) {
	var page paginated[Cluster]
	path := fmt.Sprintf("api/atlas/v2/groups/%s/clusters", url.PathEscape(projectID))
	if err := c.authedDo(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// GetCluster returns one cluster of a project.
func (c *Client) GetCluster(ctx context.Context, projectID, clusterName string) (*Cluster, error) {
	var cluster Cluster
	path := fmt.Sprintf("api/atlas/v2/groups/%s/clusters/%s", url.PathEscape(projectID), url.PathEscape(clusterName))
	if err := c.authedDo(ctx, http.MethodGet, path, nil, &cluster); err != nil {
		return nil, err
	}
	return &cluster, nil
}

// CreateDatabaseUser creates a database user in the project.
func (c *Client) CreateDatabaseUser(ctx context.Context, projectID string, user DatabaseUser) (*DatabaseUser, error) {
	user.GroupID = projectID
	var created DatabaseUser
	path := fmt.Sprintf("api/atlas/v2/groups/%s/databaseUsers", url.PathEscape(projectID))
	if err := c.authedDo(ctx, http.MethodPost, path, user, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteDatabaseUser removes a database user authenticated against the admin database.
func (c *Client) DeleteDatabaseUser(ctx context.Context, projectID, username string) error {
	path := fmt.Sprintf("api/atlas/v2/groups/%s/databaseUsers/admin/%s", url.PathEscape(projectID), url.PathEscape(username))
	return c.authedDo(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) authedDo(ctx context.Context, method, path string, body, out any) error {
	if !c.HasCredentials() {
		return ErrNoCredentials
	}
	return c.do(ctx, c.authed, method, path, acceptV2, body, out)
}

func (c *Client) do(ctx context.Context, httpClient *http.Client, method, path, accept string, body, out any) error {
	endpoint := c.baseURL.ResolveReference(&url.URL{Path: path})

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", accept)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Msg("Failed to close atlas response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

package supabase

import (
	"fmt"
	"strings"
	"sync"

	postgrest "github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

// Client wraps the hosted backend SDK: GoTrue for identity, PostgREST
// for durable CRUD. Row-level security scopes every REST call to the
// user identified by the bearer token, so the REST binding must be
// rebuilt whenever the session token changes.
type Client struct {
	base    *supa.Client
	baseURL string
	anonKey string

	mu   sync.RWMutex
	rest *postgrest.Client
}

// New creates a client bound to the project URL and anon key. Until a
// sign-in binds a user token, REST calls carry the anon key only.
func New(baseURL, anonKey string) (*Client, error) {
	base, err := supa.NewClient(baseURL, anonKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}

	c := &Client{
		base:    base,
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
	}
	c.BindToken(anonKey)
	return c, nil
}

// BindToken rebinds the REST layer to the given access token. Called on
// sign-in and on every session refresh.
func (c *Client) BindToken(accessToken string) {
	rest := postgrest.NewClient(c.baseURL+"/rest/v1", "public", map[string]string{
		"apikey": c.anonKey,
	}).SetAuthToken(accessToken)

	c.mu.Lock()
	c.rest = rest
	c.mu.Unlock()
}

// Rest returns the current token-bound PostgREST client.
func (c *Client) Rest() *postgrest.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rest
}

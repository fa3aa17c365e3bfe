package actiongate

import (
	"net/http"
	"time"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithServerAddr sets the actiongate server address.
// If not set, defaults to the ACTIONGATE_SERVER_ADDR environment variable.
func WithServerAddr(addr string) Option {
	return func(c *Client) {
		c.serverAddr = addr
	}
}

// WithAPIKey sets the API key for authenticating with the server.
// If not set, defaults to the ACTIONGATE_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithOrganizationID sets the default organization for requests. Only
// meaningful against an open server; authenticated requests are scoped to
// the API key's organization.
func WithOrganizationID(id string) Option {
	return func(c *Client) {
		c.organizationID = id
	}
}

// WithTimeout sets the HTTP request timeout.
// If not set, defaults to 30 seconds (invocations may execute inline).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithPollInterval sets how often WaitForDecision polls the queue.
// If not set, defaults to 2 seconds.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = d
	}
}

// WithHTTPClient sets a custom http.Client for making requests.
// Useful for testing, proxying, or custom transport configurations.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

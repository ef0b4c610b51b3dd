package httpjson

import (
    "context"
    "crypto/tls"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/cenkalti/backoff/v4"

    "github.com/amirimatin/go-erosion/pkg/transport"
)

// Client is a thin HTTP client for the management API. It supports optional
// TLS configuration and retries transient failures with exponential backoff.
type Client struct {
    httpc     *http.Client
    transport *http.Transport
    isTLS     bool
    retries   uint64
}

// NewClient constructs a new Client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    tr := &http.Transport{}
    return &Client{httpc: &http.Client{Timeout: timeout, Transport: tr}, transport: tr, retries: 2}
}

// UseTLS sets the TLS config for the underlying HTTP client and switches the
// request scheme to https.
func (c *Client) UseTLS(cfg *tls.Config) *Client {
    if c.transport != nil { c.transport.TLSClientConfig = cfg }
    c.isTLS = cfg != nil
    return c
}

func (c *Client) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    return c.get(ctx, addr, "/status")
}

func (c *Client) GetMembers(ctx context.Context, addr string) ([]byte, error) {
    return c.get(ctx, addr, "/members")
}

func (c *Client) get(ctx context.Context, addr, path string) ([]byte, error) {
    scheme := "http"
    if c.isTLS { scheme = "https" }
    url := fmt.Sprintf("%s://%s%s", scheme, addr, path)

    var body []byte
    op := func() error {
        req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
        if err != nil { return backoff.Permanent(err) }
        resp, err := c.httpc.Do(req)
        if err != nil { return err }
        defer resp.Body.Close()
        b, err := io.ReadAll(resp.Body)
        if err != nil { return err }
        switch {
        case resp.StatusCode == http.StatusOK:
            body = b
            return nil
        case resp.StatusCode >= 500:
            return fmt.Errorf("httpjson: %s: status %d: %s", path, resp.StatusCode, string(b))
        default:
            return backoff.Permanent(fmt.Errorf("httpjson: %s: status %d: %s", path, resp.StatusCode, string(b)))
        }
    }
    bo := backoff.NewExponentialBackOff()
    bo.InitialInterval = 100 * time.Millisecond
    if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.retries), ctx)); err != nil {
        return nil, err
    }
    return body, nil
}

var _ transport.RPCClient = (*Client)(nil)

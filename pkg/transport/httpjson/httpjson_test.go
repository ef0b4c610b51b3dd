package httpjson

import (
    "bytes"
    "context"
    "errors"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync/atomic"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/amirimatin/go-erosion/pkg/internal/testcerts"
    "github.com/amirimatin/go-erosion/pkg/observability/metrics"
    "github.com/amirimatin/go-erosion/pkg/security/tlsconfig"
    "github.com/amirimatin/go-erosion/pkg/transport"
)

func handlers(healthy *atomic.Bool) transport.Handlers {
    return transport.Handlers{
        Status:  func(context.Context) ([]byte, error) { return []byte(`{"name":"n1"}`), nil },
        Members: func(context.Context) ([]byte, error) { return []byte(`[{"name":"n2"}]`), nil },
        Healthy: healthy.Load,
    }
}

func TestHandlerEndpoints(t *testing.T) {
    metrics.Register()
    var healthy atomic.Bool
    healthy.Store(true)
    srv := httptest.NewServer(Handler(handlers(&healthy)))
    defer srv.Close()

    get := func(path string) (*http.Response, string) {
        resp, err := http.Get(srv.URL + path)
        require.NoError(t, err)
        defer resp.Body.Close()
        var sb bytes.Buffer
        _, _ = sb.ReadFrom(resp.Body)
        return resp, sb.String()
    }

    resp, body := get("/status")
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
    assert.JSONEq(t, `{"name":"n1"}`, body)

    _, body = get("/members")
    assert.JSONEq(t, `[{"name":"n2"}]`, body)

    resp, _ = get("/healthz")
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    healthy.Store(false)
    resp, _ = get("/healthz")
    assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

    resp, body = get("/metrics")
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Contains(t, body, "erosion_mgmt_status_requests_total")

    r, err := http.Post(srv.URL+"/status", "application/json", nil)
    require.NoError(t, err)
    r.Body.Close()
    assert.Equal(t, http.StatusMethodNotAllowed, r.StatusCode)
}

func TestHandlerMissingAndFailing(t *testing.T) {
    h := transport.Handlers{
        Status: func(context.Context) ([]byte, error) { return nil, errors.New("boom") },
    }
    srv := httptest.NewServer(Handler(h))
    defer srv.Close()

    resp, err := http.Get(srv.URL + "/members")
    require.NoError(t, err)
    resp.Body.Close()
    assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

    resp, err = http.Get(srv.URL + "/status")
    require.NoError(t, err)
    resp.Body.Close()
    assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

    // nil Healthy means healthy
    resp, err = http.Get(srv.URL + "/healthz")
    require.NoError(t, err)
    resp.Body.Close()
    assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerClientRoundTrip(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    var healthy atomic.Bool
    healthy.Store(true)

    s := NewServer("127.0.0.1:0", nil)
    require.NoError(t, s.Start(ctx, handlers(&healthy)))
    defer s.Stop(context.Background())
    require.NotEqual(t, "127.0.0.1:0", s.Addr())

    c := NewClient(time.Second)
    b, err := c.GetStatus(ctx, s.Addr())
    require.NoError(t, err)
    assert.JSONEq(t, `{"name":"n1"}`, string(b))
    b, err = c.GetMembers(ctx, s.Addr())
    require.NoError(t, err)
    assert.JSONEq(t, `[{"name":"n2"}]`, string(b))

    require.NoError(t, s.Stop(context.Background()))
    require.NoError(t, s.Stop(context.Background()))
}

func TestClientRetriesServerErrors(t *testing.T) {
    var calls atomic.Int32
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if calls.Add(1) == 1 { http.Error(w, "busy", http.StatusServiceUnavailable); return }
        _, _ = w.Write([]byte(`{}`))
    }))
    defer srv.Close()

    b, err := NewClient(time.Second).GetStatus(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
    require.NoError(t, err)
    assert.Equal(t, "{}", string(b))
    assert.Equal(t, int32(2), calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
    var calls atomic.Int32
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        calls.Add(1)
        http.NotFound(w, r)
    }))
    defer srv.Close()

    _, err := NewClient(time.Second).GetStatus(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
    require.Error(t, err)
    assert.Equal(t, int32(1), calls.Load())
}

func TestServerClientMutualTLS(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    certs := testcerts.Make(t, t.TempDir())
    srvTLS, err := tlsconfig.Options{Enable: true, CAFile: certs.CA, CertFile: certs.ServerCert, KeyFile: certs.ServerKey}.Server()
    require.NoError(t, err)
    cliTLS, err := tlsconfig.Options{Enable: true, CAFile: certs.CA, CertFile: certs.ClientCert, KeyFile: certs.ClientKey}.Client()
    require.NoError(t, err)

    var healthy atomic.Bool
    s := NewServer("127.0.0.1:0", nil).UseTLS(srvTLS)
    require.NoError(t, s.Start(ctx, handlers(&healthy)))
    defer s.Stop(context.Background())

    b, err := NewClient(time.Second).UseTLS(cliTLS).GetStatus(ctx, s.Addr())
    require.NoError(t, err)
    assert.JSONEq(t, `{"name":"n1"}`, string(b))
}

package tlsconfig

import (
    "crypto/tls"
    "crypto/x509"
    "errors"
    "fmt"
    "os"
    "sync"
    "time"
)

// reloadTTL bounds how long a certificate loaded by the hot-reload configs
// is reused before it is read from disk again.
const reloadTTL = 10 * time.Second

// ErrCertRequired is returned when a server config is requested without a
// certificate/key pair.
var ErrCertRequired = errors.New("tls: server cert/key required when TLS enabled")

// Options defines mTLS configuration inputs for the management plane.
type Options struct {
    Enable             bool
    CAFile             string
    CertFile           string
    KeyFile            string
    InsecureSkipVerify bool
    ServerName         string
}

// Server returns a tls.Config for servers if enabled, otherwise nil. With a
// CA file, client certificates signed by that CA are required.
func (o Options) Server() (*tls.Config, error) {
    if !o.Enable { return nil, nil }
    if o.CertFile == "" || o.KeyFile == "" { return nil, ErrCertRequired }
    cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
    if err != nil { return nil, fmt.Errorf("tls: load keypair: %w", err) }
    cfg := &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}}
    if err := o.requireClients(cfg); err != nil { return nil, err }
    return cfg, nil
}

// Client returns a tls.Config for clients if enabled, otherwise nil.
func (o Options) Client() (*tls.Config, error) {
    if !o.Enable { return nil, nil }
    cfg, err := o.clientBase()
    if err != nil { return nil, err }
    if o.CertFile != "" && o.KeyFile != "" {
        cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
        if err != nil { return nil, fmt.Errorf("tls: load keypair: %w", err) }
        cfg.Certificates = []tls.Certificate{cert}
    }
    return cfg, nil
}

// ServerHotReload returns a server tls.Config that re-reads the certificate
// from disk on handshake (at most every reloadTTL), so certificates can be
// rotated without a restart. The CA pool is loaded once.
func (o Options) ServerHotReload() (*tls.Config, error) {
    if !o.Enable { return nil, nil }
    if o.CertFile == "" || o.KeyFile == "" { return nil, ErrCertRequired }
    cfg := &tls.Config{MinVersion: tls.VersionTLS12}
    if err := o.requireClients(cfg); err != nil { return nil, err }
    cc := &certCache{certFile: o.CertFile, keyFile: o.KeyFile}
    if _, err := cc.get(); err != nil { return nil, err }
    cfg.GetCertificate = func(*tls.ClientHelloInfo) (*tls.Certificate, error) { return cc.get() }
    return cfg, nil
}

// ClientHotReload is the client-side counterpart of ServerHotReload.
func (o Options) ClientHotReload() (*tls.Config, error) {
    if !o.Enable { return nil, nil }
    cfg, err := o.clientBase()
    if err != nil { return nil, err }
    if o.CertFile == "" || o.KeyFile == "" { return cfg, nil }
    cc := &certCache{certFile: o.CertFile, keyFile: o.KeyFile}
    cfg.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) { return cc.get() }
    return cfg, nil
}

func (o Options) clientBase() (*tls.Config, error) {
    cfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: o.InsecureSkipVerify} //nolint:gosec
    if o.ServerName != "" { cfg.ServerName = o.ServerName }
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.RootCAs = pool
    }
    return cfg, nil
}

func (o Options) requireClients(cfg *tls.Config) error {
    if o.CAFile == "" { return nil }
    pool, err := loadPool(o.CAFile)
    if err != nil { return err }
    cfg.ClientCAs = pool
    cfg.ClientAuth = tls.RequireAndVerifyClientCert
    return nil
}

func loadPool(path string) (*x509.CertPool, error) {
    ca, err := os.ReadFile(path)
    if err != nil { return nil, fmt.Errorf("tls: read CA: %w", err) }
    pool := x509.NewCertPool()
    if !pool.AppendCertsFromPEM(ca) { return nil, fmt.Errorf("tls: no certificates in %s", path) }
    return pool, nil
}

type certCache struct {
    certFile, keyFile string

    mu       sync.Mutex
    cached   *tls.Certificate
    lastLoad time.Time
}

func (c *certCache) get() (*tls.Certificate, error) {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.cached != nil && time.Since(c.lastLoad) < reloadTTL { return c.cached, nil }
    cert, err := tls.LoadX509KeyPair(c.certFile, c.keyFile)
    if err != nil {
        // keep serving the last good certificate during a partial rotation
        if c.cached != nil { return c.cached, nil }
        return nil, fmt.Errorf("tls: load keypair: %w", err)
    }
    c.cached, c.lastLoad = &cert, time.Now()
    return c.cached, nil
}

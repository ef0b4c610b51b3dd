// Package testcerts writes a throwaway CA plus server and client leaf
// certificates for TLS tests.
package testcerts

import (
    "crypto/ecdsa"
    "crypto/elliptic"
    "crypto/rand"
    "crypto/x509"
    "crypto/x509/pkix"
    "encoding/pem"
    "math/big"
    "net"
    "os"
    "path/filepath"
    "testing"
    "time"
)

// Set holds the PEM file paths written by Make.
type Set struct {
    CA                    string
    ServerCert, ServerKey string
    ClientCert, ClientKey string
}

// Make writes a CA and two leaves (server for 127.0.0.1/localhost, client)
// into dir.
func Make(t testing.TB, dir string) Set {
    t.Helper()
    caPriv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
    if err != nil { t.Fatalf("ca key: %v", err) }
    caTpl := &x509.Certificate{
        SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "go-erosion-ca"},
        NotBefore: time.Now().Add(-time.Hour), NotAfter: time.Now().Add(48 * time.Hour),
        KeyUsage: x509.KeyUsageCertSign | x509.KeyUsageCRLSign, IsCA: true, BasicConstraintsValid: true,
    }
    caDER, err := x509.CreateCertificate(rand.Reader, caTpl, caTpl, &caPriv.PublicKey, caPriv)
    if err != nil { t.Fatalf("ca cert: %v", err) }
    var s Set
    s.CA = filepath.Join(dir, "ca.crt")
    writePEM(t, s.CA, "CERTIFICATE", caDER)

    leaf := func(cn, name string, usage x509.ExtKeyUsage, serial int64) (string, string) {
        priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
        if err != nil { t.Fatalf("%s key: %v", cn, err) }
        tpl := &x509.Certificate{
            SerialNumber: big.NewInt(serial), Subject: pkix.Name{CommonName: cn},
            NotBefore: time.Now().Add(-time.Hour), NotAfter: time.Now().Add(24 * time.Hour),
            KeyUsage: x509.KeyUsageDigitalSignature, ExtKeyUsage: []x509.ExtKeyUsage{usage},
            IPAddresses: []net.IP{net.ParseIP("127.0.0.1")}, DNSNames: []string{"localhost"},
        }
        der, err := x509.CreateCertificate(rand.Reader, tpl, caTpl, &priv.PublicKey, caPriv)
        if err != nil { t.Fatalf("%s cert: %v", cn, err) }
        keyDER, err := x509.MarshalECPrivateKey(priv)
        if err != nil { t.Fatalf("%s marshal key: %v", cn, err) }
        crt, key := filepath.Join(dir, name+".crt"), filepath.Join(dir, name+".key")
        writePEM(t, crt, "CERTIFICATE", der)
        writePEM(t, key, "EC PRIVATE KEY", keyDER)
        return crt, key
    }
    s.ServerCert, s.ServerKey = leaf("go-erosion-server", "server", x509.ExtKeyUsageServerAuth, 2)
    s.ClientCert, s.ClientKey = leaf("go-erosion-client", "client", x509.ExtKeyUsageClientAuth, 3)
    return s
}

func writePEM(t testing.TB, path, typ string, der []byte) {
    t.Helper()
    b := pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der})
    if err := os.WriteFile(path, b, 0o600); err != nil { t.Fatalf("write %s: %v", path, err) }
}

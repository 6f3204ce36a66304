package tls

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/consolr/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	c, err := Setup(config.TLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestSetupAutoGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	c, err := Setup(config.TLSConfig{
		Enabled:      true,
		Dir:          dir,
		AutoGenerate: true,
		AutoGen:      config.AutoGenTLS{CommonName: "mc.local", DNSNames: []string{"mc.local"}},
	})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, uint16(tls.VersionTLS12), c.MinVersion)
	assert.Equal(t, uint16(tls.VersionTLS13), c.MaxVersion)

	for _, f := range []string{tlsCrt, tlsKey, tlsCaCrt} {
		assert.FileExists(t, filepath.Join(dir, f))
	}
	info, err := os.Stat(filepath.Join(dir, tlsKey))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cert, err := c.GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "mc.local", leaf.Subject.CommonName)
	assert.Contains(t, leaf.DNSNames, "mc.local")
	assert.Len(t, leaf.IPAddresses, 1)

	// a second setup reuses the existing pair
	before, _ := os.ReadFile(filepath.Join(dir, tlsCrt))
	_, err = Setup(config.TLSConfig{Enabled: true, Dir: dir, AutoGenerate: true})
	require.NoError(t, err)
	after, _ := os.ReadFile(filepath.Join(dir, tlsCrt))
	assert.Equal(t, before, after)
}

func TestSetupExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := CertConfig{
		CommonName:   "x",
		Organization: "y",
		NotAfter:     time.Now().AddDate(1, 0, 0),
		CertPath:     filepath.Join(dir, "a.crt"),
		KeyPath:      filepath.Join(dir, "a.key"),
	}
	require.NoError(t, GenerateSelfSignedCert(cfg))

	c, err := Setup(config.TLSConfig{Enabled: true, CertFile: cfg.CertPath, KeyFile: cfg.KeyPath, MinVersion: "1.3"})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS13), c.MinVersion)
}

func TestSetupErrors(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]config.TLSConfig{
		"no source":        {Enabled: true},
		"missing pair":     {Enabled: true, Dir: dir},
		"bad version":      {Enabled: true, Dir: dir, AutoGenerate: true, MinVersion: "1.0"},
		"inverted version": {Enabled: true, Dir: dir, AutoGenerate: true, MinVersion: "1.3", MaxVersion: "1.2"},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Setup(cfg)
			assert.Error(t, err)
		})
	}
}

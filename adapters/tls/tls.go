// Package tls provides HTTPS for the API server, either from certificate
// files or from ACME (Let's Encrypt) through autocert.
package tls

import (
	"context"
	cryptotls "crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

// StagingURL is the Let's Encrypt staging directory.
const StagingURL = "https://acme-staging-v02.api.letsencrypt.org/directory"

// Config selects the certificate source. Files win over ACME.
type Config struct {
	CertFile string
	KeyFile  string

	// ACME
	Domains  []string
	Email    string
	CacheDir string
	Staging  bool
}

// Provider supplies server certificates.
type Provider struct {
	cfg     Config
	logger  zerolog.Logger
	cert    *cryptotls.Certificate
	manager *autocert.Manager
}

// New loads the certificate files, or prepares an autocert manager when
// only domains are given.
func New(cfg Config, logger zerolog.Logger) (*Provider, error) {
	p := &Provider{cfg: cfg, logger: logger}

	switch {
	case cfg.CertFile != "" || cfg.KeyFile != "":
		cert, err := cryptotls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load key pair: %w", err)
		}
		p.cert = &cert
		logger.Info().Str("cert", cfg.CertFile).Msg("tls certificate loaded")

	case len(cfg.Domains) > 0:
		directory := acme.LetsEncryptURL
		if cfg.Staging {
			directory = StagingURL
		}
		p.manager = &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Email:      cfg.Email,
			HostPolicy: p.hostPolicy,
			Client:     &acme.Client{DirectoryURL: directory},
		}
		if cfg.CacheDir != "" {
			p.manager.Cache = autocert.DirCache(cfg.CacheDir)
		}
		logger.Info().
			Strs("domains", cfg.Domains).
			Bool("staging", cfg.Staging).
			Str("cache", cfg.CacheDir).
			Msg("acme certificates enabled")

	default:
		return nil, errors.New("tls: need cert_file and key_file, or domains")
	}
	return p, nil
}

// ACME reports whether certificates come from ACME.
func (p *Provider) ACME() bool {
	return p.manager != nil
}

// TLSConfig returns the server TLS configuration.
func (p *Provider) TLSConfig() *cryptotls.Config {
	if p.manager != nil {
		cfg := p.manager.TLSConfig()
		cfg.MinVersion = cryptotls.VersionTLS12
		return cfg
	}
	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{*p.cert},
		MinVersion:   cryptotls.VersionTLS12,
	}
}

// HTTPHandler answers HTTP-01 challenges and passes everything else to
// fallback. A nil fallback redirects to HTTPS.
func (p *Provider) HTTPHandler(fallback http.Handler) http.Handler {
	if p.manager == nil {
		if fallback != nil {
			return fallback
		}
		return http.HandlerFunc(redirectHTTPS)
	}
	return p.manager.HTTPHandler(fallback)
}

func redirectHTTPS(w http.ResponseWriter, r *http.Request) {
	target := "https://" + stripPort(r.Host) + r.URL.RequestURI()
	http.Redirect(w, r, target, http.StatusFound)
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// hostPolicy allows the configured domains; "*.example.com" matches any
// subdomain.
func (p *Provider) hostPolicy(ctx context.Context, host string) error {
	if allowed(p.cfg.Domains, host) {
		return nil
	}
	p.logger.Warn().Str("host", host).Msg("tls host not in allowed domains")
	return fmt.Errorf("host %q not in allowed domains", host)
}

func allowed(domains []string, host string) bool {
	for _, d := range domains {
		if d == host {
			return true
		}
		if suffix, ok := strings.CutPrefix(d, "*"); ok && strings.HasPrefix(suffix, ".") {
			if len(host) > len(suffix) && strings.HasSuffix(host, suffix) {
				return true
			}
		}
	}
	return false
}

package openapi

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/artpar/apigen/core/registry"
)

// Service serves the generated document. Models are immutable once the
// registry is built, so the document is generated once and cached.
type Service struct {
	gen    *Generator
	logger zerolog.Logger

	once sync.Once
	body []byte
	err  error
}

// ServiceConfig contains configuration for the OpenAPI service.
type ServiceConfig struct {
	Registry *registry.Registry
	Info     Info
	Logger   zerolog.Logger
}

// NewService creates a new OpenAPI service.
func NewService(cfg ServiceConfig) *Service {
	gen := NewGenerator(cfg.Registry)
	if cfg.Info.Title != "" {
		gen.SetInfo(cfg.Info)
	}
	return &Service{gen: gen, logger: cfg.Logger}
}

// Spec returns a freshly generated document.
func (s *Service) Spec() *Spec {
	return s.gen.Generate()
}

// JSON returns the cached, encoded document.
func (s *Service) JSON() ([]byte, error) {
	s.once.Do(func() {
		s.body, s.err = json.MarshalIndent(s.gen.Generate(), "", "  ")
		if s.err == nil {
			s.logger.Debug().Int("bytes", len(s.body)).Msg("openapi document generated")
		}
	})
	return s.body, s.err
}

// ServeHTTP writes the document.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := s.JSON()
	if err != nil {
		s.logger.Error().Err(err).Msg("openapi document encoding failed")
		http.Error(w, "openapi document unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

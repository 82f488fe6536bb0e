// Package embedding implements the text→vector contract: a pluggable
// HTTP-backed provider that must never fail the caller, falling back to a
// deterministic MD5-seeded pseudo-embedding on any error.
package embedding

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"

	"github.com/sirupsen/logrus"

	"dev.vasic.ultramemory/internal/config"
)

// Provider is the embedding contract: embed(text) -> fixed-dimension vector.
// Implementations must never return an error that blocks the caller —
// Provider.Embed always returns a usable vector.
type Provider interface {
	Embed(ctx context.Context, text string) []float32
	Dimension() int
}

// HTTPProvider calls a configured embedding endpoint and falls back to a
// deterministic pseudo-vector on any network/HTTP failure.
type HTTPProvider struct {
	cfg    config.EmbeddingConfig
	client *http.Client
	log    *logrus.Entry
}

func NewHTTPProvider(cfg config.EmbeddingConfig, log *logrus.Logger) *HTTPProvider {
	if log == nil {
		log = logrus.New()
	}
	return &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.WithField("component", "embedding"),
	}
}

func (p *HTTPProvider) Dimension() int {
	if p.cfg.Dimension <= 0 {
		return 1536
	}
	return p.cfg.Dimension
}

type embedRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed calls the configured provider and never raises: on any error it
// substitutes a deterministic fallback vector so the ingest pipeline is
// never blocked by an unavailable embedding backend.
func (p *HTTPProvider) Embed(ctx context.Context, text string) []float32 {
	if p.cfg.ProviderURL == "" {
		return Fallback(text, p.Dimension())
	}

	vec, err := p.callProvider(ctx, text)
	if err != nil {
		p.log.WithError(err).Warn("embedding provider failed, using deterministic fallback")
		return Fallback(text, p.Dimension())
	}
	return normalizeDimension(vec, p.Dimension())
}

func (p *HTTPProvider) callProvider(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Input: text, Model: p.cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.ProviderURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed provider returned status %d", resp.StatusCode)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embed response contained no vectors")
	}
	return parsed.Data[0].Embedding, nil
}

// Fallback produces a deterministic pseudo-embedding seeded by the MD5 digest
// of the input text, L2-normalised — so provider outages are invisible to the
// pipeline's correctness (only to its semantic quality).
func Fallback(text string, dim int) []float32 {
	sum := md5.Sum([]byte(text))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(seed))

	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(rng.Float64()*2 - 1) // uniform(-1, 1)
	}
	return l2Normalize(vec)
}

func l2Normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// normalizeDimension truncates or zero-pads a vector to exactly dim — every
// vector in the store must share one fixed dimension.
func normalizeDimension(vec []float32, dim int) []float32 {
	if len(vec) == dim {
		return vec
	}
	out := make([]float32, dim)
	copy(out, vec) // copy truncates if len(vec) > dim, zero-pads if shorter
	return out
}


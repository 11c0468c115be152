package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"finextract/internal/config"
	"finextract/internal/domain"
)

// ProviderRemote is the provider name of RemoteSource.
const ProviderRemote = "remote"

const (
	defaultRemoteName    = "vision"
	defaultRemoteTimeout = 30 * time.Second
	maxResponseBytes     = 10 << 20
)

// responseSchema is the contract a remote collaborator must answer with.
const responseSchema = `{
  "type": "object",
  "required": ["records"],
  "properties": {
    "records": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["identifier", "market_value", "confidence"],
        "properties": {
          "identifier":   {"type": "string", "pattern": "^\\s*[A-Za-z]{2}[A-Za-z0-9]{9}[0-9]\\s*$"},
          "market_value": {"type": "number", "exclusiveMinimum": 0},
          "confidence":   {"type": "number", "minimum": 0, "maximum": 1},
          "currency":     {"type": "string"},
          "name":         {"type": "string"}
        }
      }
    }
  }
}`

type remoteRequest struct {
	DocumentName string `json:"document_name"`
	Text         string `json:"text"`
}

type remoteResponse struct {
	Records []struct {
		Identifier  string  `json:"identifier"`
		MarketValue float64 `json:"market_value"`
		Confidence  float64 `json:"confidence"`
		Currency    string  `json:"currency"`
		Name        string  `json:"name"`
	} `json:"records"`
}

// RemoteSource asks an out-of-process collaborator (a vision or OCR
// service) for its record set over HTTP.
type RemoteSource struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
	schema   *jsonschema.Schema
	logger   *zap.Logger
}

// NewRemoteSource creates a RemoteSource from the source config.
func NewRemoteSource(cfg *config.SourceConfig, logger *zap.Logger) (*RemoteSource, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: remote source endpoint is required", domain.ErrInvalidConfig)
	}
	schema, err := compileSchema(responseSchema)
	if err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = defaultRemoteName
	}
	timeout := defaultRemoteTimeout
	if cfg.TimeoutSecs > 0 {
		timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RemoteSource{
		name:     name,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, burst),
		schema:   schema,
		logger:   logger,
	}, nil
}

func compileSchema(src string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(src)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Name implements port.ExtractionSource.
func (r *RemoteSource) Name() string { return r.name }

// Extract implements port.ExtractionSource.
func (r *RemoteSource) Extract(ctx context.Context, doc *domain.Document) ([]domain.SecurityRecord, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: waiting for rate limiter: %w", domain.ErrSourceUnavailable, r.name, err)
	}

	bodyBytes, err := json.Marshal(remoteRequest{DocumentName: doc.Name, Text: doc.Text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("x-api-key", r.apiKey)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: sending request: %w", domain.ErrSourceUnavailable, r.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading response: %w", domain.ErrSourceUnavailable, r.name, err)
	}

	if resp.StatusCode != http.StatusOK {
		baseErr := fmt.Errorf("%w: %s returned status %d: %s", domain.ErrSourceUnavailable, r.name, resp.StatusCode, truncate(respBody, 200))
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, NewRateLimitError(r.name, baseErr, RetryAfter(resp.Header.Get("Retry-After"), time.Now()))
		}
		return nil, baseErr
	}

	records, err := r.decode(respBody)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("remote source answered",
		zap.String("source", r.name),
		zap.Int("records", len(records)),
		zap.Duration("latency", time.Since(start)),
	)
	return records, nil
}

func (r *RemoteSource) decode(body []byte) ([]domain.SecurityRecord, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("%w: %s: response is not JSON: %w", domain.ErrSourceUnavailable, r.name, err)
	}
	if err := r.schema.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %s: response does not match schema: %w", domain.ErrSourceUnavailable, r.name, err)
	}

	var parsed remoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %s: decoding records: %w", domain.ErrSourceUnavailable, r.name, err)
	}

	records := make([]domain.SecurityRecord, 0, len(parsed.Records))
	for _, p := range parsed.Records {
		records = append(records, domain.SecurityRecord{
			Identifier:  strings.ToUpper(strings.TrimSpace(p.Identifier)),
			Name:        p.Name,
			MarketValue: p.MarketValue,
			Currency:    strings.ToUpper(p.Currency),
			Confidence:  p.Confidence,
			Source:      r.name,
		})
	}
	return records, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

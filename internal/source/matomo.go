package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	urlpkg "net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/models"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/ratelimit"
)

const (
	DefaultTimeout = 30 * time.Second

	MethodVisitsSummary = "VisitsSummary.get"
	MethodGoals         = "Goals.get"
	MethodReferrerType  = "Referrers.getReferrerType"
	MethodVersion       = "API.getMatomoVersion"

	referrerSegmentPrefix = "referrerType=="
)

// goalFields are taken from Goals.get when the visits summary lacks them.
var goalFields = []string{"nb_conversions", "conversion_rate", "revenue"}

type MatomoOptions struct {
	URL        string
	Token      string
	SiteID     string
	Timeout    time.Duration
	RateLimit  int // requests per second, 0 disables throttling
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// MatomoSource reads the Matomo Reporting API over HTTP.
type MatomoSource struct {
	baseURL    string
	token      string
	siteID     string
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
	log        zerolog.Logger
}

func NewMatomoSource(opts MatomoOptions) *MatomoSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter *ratelimit.RateLimiter
	if opts.RateLimit > 0 {
		limiter = ratelimit.PerSecond(opts.RateLimit)
	}

	return &MatomoSource{
		baseURL:    opts.URL,
		token:      opts.Token,
		siteID:     opts.SiteID,
		httpClient: httpClient,
		limiter:    limiter,
		log:        opts.Logger.With().Str("source", "matomo").Logger(),
	}
}

func (s *MatomoSource) Name() string {
	return "matomo"
}

// APIError is Matomo's {"result":"error","message":...} envelope. It arrives
// with HTTP 200 and means the API refused the call, not that the network
// failed.
type APIError struct {
	Method  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("matomo %s: %s", e.Method, e.Message)
}

type envelope struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

func (s *MatomoSource) FetchSummary(ctx context.Context, date string) (models.RawSummary, error) {
	summary, err := s.fetchObject(ctx, MethodVisitsSummary, date)
	if err != nil || summary == nil {
		return nil, err
	}

	goals, err := s.fetchObject(ctx, MethodGoals, date)
	if err != nil {
		return nil, err
	}

	for _, field := range goalFields {
		if _, ok := summary[field]; ok {
			continue
		}
		if v, ok := goals[field]; ok {
			summary[field] = v
		}
	}

	return summary, nil
}

func (s *MatomoSource) FetchChannels(ctx context.Context, date string) ([]models.RawChannel, error) {
	body, err := s.call(ctx, MethodReferrerType, date)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			s.log.Warn().Str("date", date).Str("method", MethodReferrerType).Msg(apiErr.Message)
			return []models.RawChannel{}, nil
		}
		return nil, err
	}

	if !isJSONArray(body) {
		return []models.RawChannel{}, nil
	}

	var rows []models.RawChannel
	if err := decode(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", MethodReferrerType, err)
	}

	for _, row := range rows {
		if label := referrerLabel(row); label != "" {
			row["label"] = label
		}
	}

	return rows, nil
}

// Version is the connectivity probe; an API error envelope here is a failure
// (bad token, unknown site).
func (s *MatomoSource) Version(ctx context.Context) (string, error) {
	body, err := s.call(ctx, MethodVersion, "")
	if err != nil {
		return "", err
	}

	var resp struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", MethodVersion, err)
	}

	if resp.Value == "" {
		return "unknown", nil
	}
	return resp.Value, nil
}

// fetchObject returns nil for an error envelope or an empty payload.
func (s *MatomoSource) fetchObject(ctx context.Context, method, date string) (map[string]interface{}, error) {
	body, err := s.call(ctx, method, date)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			s.log.Warn().Str("date", date).Str("method", method).Msg(apiErr.Message)
			return nil, nil
		}
		return nil, err
	}

	// Matomo answers [] for a period without data.
	if isJSONArray(body) {
		return nil, nil
	}

	var obj map[string]interface{}
	if err := decode(body, &obj); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", method, err)
	}

	if len(obj) == 0 {
		return nil, nil
	}
	return obj, nil
}

func (s *MatomoSource) call(ctx context.Context, method, date string) ([]byte, error) {
	params := urlpkg.Values{}
	params.Set("module", "API")
	params.Set("method", method)
	params.Set("idSite", s.siteID)
	params.Set("format", "JSON")
	params.Set("token_auth", s.token)
	if date != "" {
		params.Set("period", "day")
		params.Set("date", date)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, method, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", redactURLError(err))
	}
	req.Header.Set("Accept", "application/json")

	s.log.Debug().Str("method", method).Str("date", date).Msg("calling analytics api")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, method, redactURLError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", ErrSourceUnavailable, method, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: bad status code: %d", ErrSourceUnavailable, method, resp.StatusCode)
	}

	if env, ok := errorEnvelope(body); ok {
		message := env.Message
		if message == "" {
			message = "Unknown"
		}
		return nil, &APIError{Method: method, Message: message}
	}

	return body, nil
}

// redactURLError drops the request URL, which carries token_auth, from
// transport errors.
func redactURLError(err error) error {
	var urlErr *urlpkg.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

func errorEnvelope(body []byte) (envelope, bool) {
	if isJSONArray(body) {
		return envelope{}, false
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, false
	}
	return env, env.Result == "error"
}

func referrerLabel(row models.RawChannel) string {
	segment, _ := row["segment"].(string)
	if strings.HasPrefix(segment, referrerSegmentPrefix) {
		return strings.TrimPrefix(segment, referrerSegmentPrefix)
	}
	label, _ := row["label"].(string)
	return label
}

func isJSONArray(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func decode(body []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}

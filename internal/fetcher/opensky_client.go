package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"flight-map-dashboard/internal/geo"
	"flight-map-dashboard/internal/metrics"
	"flight-map-dashboard/internal/model"
	"flight-map-dashboard/internal/throttle"
	"flight-map-dashboard/pkg/logger"
)

var (
	// ErrUpstream covers transport failures and non-200 answers.
	ErrUpstream = errors.New("opensky upstream error")
	// ErrMalformed means the body was not the documented states object.
	ErrMalformed = errors.New("opensky malformed response")
)

// maxBodyBytes bounds how much of a states response we are willing to read.
const maxBodyBytes = 16 << 20

// Options configures an OpenSkyClient.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	Username    string
	Password    string
	MaxAircraft int
	UserAgent   string
}

// OpenSkyClient queries the OpenSky Network states endpoint for a viewport.
type OpenSkyClient struct {
	baseURL     string
	httpClient  *http.Client
	username    string
	password    string
	maxAircraft int
	userAgent   string
	limiter     *throttle.RateLimiter
	logger      *logger.Logger
	metrics     *metrics.Metrics
}

// NewOpenSkyClient creates a new OpenSky API client. limiter and m may be nil.
func NewOpenSkyClient(opts Options, limiter *throttle.RateLimiter, log *logger.Logger, m *metrics.Metrics) *OpenSkyClient {
	limit := opts.MaxAircraft
	if limit <= 0 || limit > model.MaxAircraft {
		limit = model.MaxAircraft
	}
	if log == nil {
		log = logger.Discard()
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "flight-map-dashboard/1.0"
	}
	return &OpenSkyClient{
		baseURL: opts.BaseURL,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		username:    opts.Username,
		password:    opts.Password,
		maxAircraft: limit,
		userAgent:   ua,
		limiter:     limiter,
		logger:      log,
		metrics:     m,
	}
}

// FetchStatesByBoundingBox returns at most maxAircraft aircraft inside b.
// Rows that cannot be decoded are dropped and counted in the result.
func (c *OpenSkyClient) FetchStatesByBoundingBox(ctx context.Context, b geo.Bounds) (*model.StatesResult, error) {
	url := fmt.Sprintf("%s/states/all?%s", c.baseURL, b.Query().Encode())

	resp, err := c.fetchStates(ctx, url)
	if err != nil {
		return &model.StatesResult{}, err
	}

	result := c.convert(resp)
	if result.Dropped > 0 && c.metrics != nil {
		c.metrics.AddRowsDropped(result.Dropped)
	}
	if result.Truncated && c.metrics != nil {
		c.metrics.IncrementTruncations()
	}
	c.logger.Debug("Bounds %s: %d aircraft, %d dropped, truncated=%t",
		b, len(result.Aircraft), result.Dropped, result.Truncated)

	return result, nil
}

func (c *OpenSkyClient) fetchStates(ctx context.Context, url string) (*model.StatesResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if !cancelled(ctx) {
				c.logger.Warn("Throttle gave up before the query went out: %v", err)
			}
			return nil, fmt.Errorf("%w: throttled: %v", ErrUpstream, err)
		}
	}

	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	if c.metrics != nil {
		c.metrics.IncrementAPIRequests()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if cancelled(ctx) {
			c.logger.Debug("OpenSky query abandoned: %v", err)
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		c.recordError()
		c.logger.Error("Failed to fetch data from OpenSky: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	latency := time.Since(startTime).Milliseconds()
	if c.metrics != nil {
		c.metrics.RecordAPILatency(latency)
	}

	if resp.StatusCode != http.StatusOK {
		c.recordError()
		c.logger.Error("OpenSky API returned status %d", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if cancelled(ctx) {
			c.logger.Debug("OpenSky query abandoned while reading body: %v", err)
			return nil, fmt.Errorf("%w: reading body: %v", ErrUpstream, err)
		}
		c.recordError()
		c.logger.Error("Failed to read response body: %v", err)
		return nil, fmt.Errorf("%w: reading body: %v", ErrUpstream, err)
	}

	var states model.StatesResponse
	if err := json.Unmarshal(body, &states); err != nil {
		c.recordError()
		c.logger.Warn("OpenSky returned an unexpected body: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	c.logger.Debug("Fetched %d state rows from OpenSky in %dms", len(states.States), latency)

	return &states, nil
}

// cancelled is true when the caller gave up on the query, as opposed to a
// deadline or transport failure.
func cancelled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

func (c *OpenSkyClient) recordError() {
	if c.metrics != nil {
		c.metrics.IncrementAPIErrors()
	}
}

// convert decodes rows in upstream order until the cap is reached.
func (c *OpenSkyClient) convert(resp *model.StatesResponse) *model.StatesResult {
	result := &model.StatesResult{Time: resp.Time}
	if len(resp.States) == 0 {
		return result
	}

	result.Aircraft = make([]model.Aircraft, 0, min(len(resp.States), c.maxAircraft))
	for _, raw := range resp.States {
		a, err := model.DecodeState(raw)
		if err != nil {
			result.Dropped++
			c.logger.Debug("Skipping state row: %v", err)
			continue
		}
		if len(result.Aircraft) == c.maxAircraft {
			result.Truncated = true
			break
		}
		result.Aircraft = append(result.Aircraft, a)
	}

	return result
}

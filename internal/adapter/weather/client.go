// Package weather fetches hourly precipitation forecasts from the Google
// Weather API (forecast/hours:lookup).
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/couchcryptid/flood-context-service/internal/domain"
)

// pageSize is the API's maximum hours per page.
const pageSize = 24

// Client implements domain.ForecastProvider.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxElapsed time.Duration
	logger     *slog.Logger
}

// NewClient creates a forecast client against baseURL (https://weather.googleapis.com/v1).
func NewClient(apiKey, baseURL string, timeout, maxElapsed time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxElapsed: maxElapsed,
		logger:     logger,
	}
}

// HourlyForecast returns up to hours forecast points for the location,
// following page tokens until enough hours are collected.
func (c *Client) HourlyForecast(ctx context.Context, lat, lon float64, hours int) ([]domain.ForecastPoint, error) {
	points := make([]domain.ForecastPoint, 0, hours)
	pageToken := ""
	for len(points) < hours {
		page, err := c.fetchPage(ctx, lat, lon, hours, pageToken)
		if err != nil {
			return nil, err
		}
		for _, h := range page.ForecastHours {
			if len(points) == hours {
				break
			}
			p, err := h.toPoint()
			if err != nil {
				c.logger.Warn("skipping malformed forecast hour", "error", err)
				continue
			}
			points = append(points, p)
		}
		if page.NextPageToken == "" || len(page.ForecastHours) == 0 {
			break
		}
		pageToken = page.NextPageToken
	}
	return points, nil
}

func (c *Client) fetchPage(ctx context.Context, lat, lon float64, hours int, pageToken string) (*forecastResponse, error) {
	params := url.Values{
		"key":                {c.apiKey},
		"location.latitude":  {strconv.FormatFloat(lat, 'f', 6, 64)},
		"location.longitude": {strconv.FormatFloat(lon, 'f', 6, 64)},
		"hours":              {strconv.Itoa(hours)},
		"pageSize":           {strconv.Itoa(pageSize)},
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	fullURL := c.baseURL + "/forecast/hours:lookup?" + params.Encode()

	var page forecastResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("forecast request: %w", err))
			}
			return fmt.Errorf("forecast request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("weather API error: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return backoff.Permanent(fmt.Errorf("weather API error: status %d: %s", resp.StatusCode, b))
		}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return backoff.Permanent(fmt.Errorf("decode forecast: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return &page, nil
}

// Google Weather API response types.

type forecastResponse struct {
	ForecastHours []forecastHour `json:"forecastHours"`
	NextPageToken string         `json:"nextPageToken"`
}

type forecastHour struct {
	Interval struct {
		StartTime string `json:"startTime"`
	} `json:"interval"`
	WeatherCondition struct {
		Description struct {
			Text string `json:"text"`
		} `json:"description"`
		Type string `json:"type"`
	} `json:"weatherCondition"`
	Precipitation struct {
		Probability struct {
			Percent float64 `json:"percent"`
			Type    string  `json:"type"`
		} `json:"probability"`
		QPF struct {
			Quantity float64 `json:"quantity"`
			Unit     string  `json:"unit"`
		} `json:"qpf"`
	} `json:"precipitation"`
}

func (h forecastHour) toPoint() (domain.ForecastPoint, error) {
	start, err := time.Parse(time.RFC3339, h.Interval.StartTime)
	if err != nil {
		return domain.ForecastPoint{}, fmt.Errorf("parse startTime %q: %w", h.Interval.StartTime, err)
	}

	mm := h.Precipitation.QPF.Quantity
	if h.Precipitation.QPF.Unit == "INCHES" {
		mm *= 25.4
	}
	condition := h.WeatherCondition.Description.Text
	if condition == "" {
		condition = h.WeatherCondition.Type
	}
	return domain.ForecastPoint{
		Time:                        start.UTC(),
		PrecipitationProbabilityPct: domain.Round(h.Precipitation.Probability.Percent, 1),
		PrecipitationAmountMM:       domain.Round(mm, 2),
		PrecipitationAmountIn:       domain.MillimetresToInches(mm),
		Condition:                   condition,
	}, nil
}

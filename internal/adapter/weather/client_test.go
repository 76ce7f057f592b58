package weather

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return NewClient("test-key", baseURL, 5*time.Second, 300*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func hourJSON(start time.Time, pct, qpf float64, cond string) string {
	return fmt.Sprintf(`{"interval":{"startTime":%q},"weatherCondition":{"description":{"text":%q},"type":"RAIN"},"precipitation":{"probability":{"percent":%v,"type":"RAIN"},"qpf":{"quantity":%v,"unit":"MILLIMETERS"}}}`,
		start.Format(time.RFC3339), cond, pct, qpf)
}

var start = time.Date(2025, 4, 10, 15, 0, 0, 0, time.UTC)

func TestHourlyForecast_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast/hours:lookup", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "30.695400", q.Get("location.latitude"))
		assert.Equal(t, "-88.039900", q.Get("location.longitude"))
		assert.Equal(t, "2", q.Get("hours"))

		_, _ = fmt.Fprintf(w, `{"forecastHours":[%s,%s]}`,
			hourJSON(start, 70, 3.1, "Light rain"),
			hourJSON(start.Add(time.Hour), 35, 0, "Cloudy"))
	}))
	defer srv.Close()

	points, err := testClient(srv.URL).HourlyForecast(context.Background(), 30.6954, -88.0399, 2)

	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, start, points[0].Time)
	assert.Equal(t, 70.0, points[0].PrecipitationProbabilityPct)
	assert.Equal(t, 3.1, points[0].PrecipitationAmountMM)
	assert.Equal(t, 0.12, points[0].PrecipitationAmountIn)
	assert.Equal(t, "Light rain", points[0].Condition)
	assert.Equal(t, "Cloudy", points[1].Condition)
}

func TestHourlyForecast_FollowsPageTokens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = fmt.Fprintf(w, `{"forecastHours":[%s,%s],"nextPageToken":"p2"}`,
				hourJSON(start, 10, 0, "Clear"), hourJSON(start.Add(time.Hour), 10, 0, "Clear"))
			return
		}
		assert.Equal(t, "p2", r.URL.Query().Get("pageToken"))
		_, _ = fmt.Fprintf(w, `{"forecastHours":[%s,%s],"nextPageToken":"p3"}`,
			hourJSON(start.Add(2*time.Hour), 20, 0, "Clear"), hourJSON(start.Add(3*time.Hour), 20, 0, "Clear"))
	}))
	defer srv.Close()

	points, err := testClient(srv.URL).HourlyForecast(context.Background(), 30, -88, 3)

	require.NoError(t, err)
	assert.Len(t, points, 3)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHourlyForecast_SkipsMalformedHours(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintf(w, `{"forecastHours":[{"interval":{"startTime":"not-a-time"}},%s]}`, hourJSON(start, 5, 0, "Sunny"))
	}))
	defer srv.Close()

	points, err := testClient(srv.URL).HourlyForecast(context.Background(), 30, -88, 4)

	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "Sunny", points[0].Condition)
}

func TestHourlyForecast_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad location"}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).HourlyForecast(context.Background(), 300, -88, 2)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHourlyForecast_ServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = fmt.Fprintf(w, `{"forecastHours":[%s]}`, hourJSON(start, 50, 1, "Showers"))
	}))
	defer srv.Close()

	points, err := testClient(srv.URL).HourlyForecast(context.Background(), 30, -88, 1)

	require.NoError(t, err)
	assert.Len(t, points, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestForecastHour_InchesUnit(t *testing.T) {
	var h forecastHour
	h.Interval.StartTime = start.Format(time.RFC3339)
	h.Precipitation.QPF.Quantity = 1
	h.Precipitation.QPF.Unit = "INCHES"
	h.WeatherCondition.Type = "HEAVY_RAIN"

	p, err := h.toPoint()

	require.NoError(t, err)
	assert.Equal(t, 25.4, p.PrecipitationAmountMM)
	assert.Equal(t, 1.0, p.PrecipitationAmountIn)
	assert.Equal(t, "HEAVY_RAIN", p.Condition)
}

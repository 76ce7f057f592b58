package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-context-service/internal/domain"
)

func TestParseForecastWindow(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want domain.ForecastWindow
	}{
		{"hours", `{"requested": true, "hours": 6}`, domain.ForecastWindow{Requested: true, Hours: 6}},
		{"fractional hours round up", `{"requested": true, "hours": 1.5}`, domain.ForecastWindow{Requested: true, Hours: 2}},
		{"string hours", `{"requested": true, "hours": "12"}`, domain.ForecastWindow{Requested: true, Hours: 12}},
		{"null hours defaults", `{"requested": true, "hours": null}`, domain.ForecastWindow{Requested: true, Hours: 24}},
		{"zero hours defaults", `{"requested": true, "hours": 0}`, domain.ForecastWindow{Requested: true, Hours: 24}},
		{"clamped", `{"requested": true, "hours": 1000}`, domain.ForecastWindow{Requested: true, Hours: 240}},
		{"hours imply requested", `{"hours": 3}`, domain.ForecastWindow{Requested: true, Hours: 3}},
		{"not requested", `{"requested": false, "hours": 6}`, domain.NoForecast()},
		{"empty object", `{}`, domain.NoForecast()},
		{"fenced", "```json\n{\"requested\": true, \"hours\": 2}\n```", domain.ForecastWindow{Requested: true, Hours: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseForecastWindow(json.RawMessage(tt.raw), 240)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseForecastWindow_Malformed(t *testing.T) {
	for _, raw := range []string{`soon`, `{"requested": true, "hours": "a few"}`, `[2]`, ``} {
		got, err := parseForecastWindow(json.RawMessage(raw), 240)
		require.Error(t, err, raw)
		assert.Equal(t, domain.NoForecast(), got)
	}
}

func TestParseLocations(t *testing.T) {
	names, err := parseLocations(json.RawMessage(`{"locations": ["Tuscaloosa, AL", " ", "tuscaloosa, al", "Mobile, AL"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Tuscaloosa, AL", "Mobile, AL"}, names)

	names, err = parseLocations(json.RawMessage(`{"locations": []}`))
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = parseLocations(json.RawMessage(`{"locations": "Tuscaloosa"}`))
	require.Error(t, err)
}

func TestPromptsCarryQueryLine(t *testing.T) {
	d := domain.IntentDefaults{MaxEvents: 10, SVIThreshold: 0.3}
	for _, req := range []domain.ClassifyRequest{
		intentRequest("flood risk in Mobile", d),
		locationsRequest("flood risk in Mobile"),
		forecastRequest("flood risk in Mobile"),
	} {
		assert.Contains(t, req.Prompt, "\nQuery: flood risk in Mobile", req.Purpose)
		assert.NotEmpty(t, req.System)
	}
	assert.Contains(t, intentRequest("q", d).Prompt, "default 0.30")
}

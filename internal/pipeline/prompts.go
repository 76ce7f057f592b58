package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/couchcryptid/flood-context-service/internal/domain"
)

// Every classification prompt carries the raw question on a "Query:" line.

const intentSystem = `You analyze questions about flood risk and decide which data is needed to answer them.
Respond with a single JSON object and nothing else.`

const intentPrompt = `Decide which data categories the question needs.

Rules:
- Causal or demographic language ("why", "vulnerable", income, age, disability, housing) needs SVI data.
- Future language ("forecast", "next N hours", "tomorrow") needs the precipitation forecast.
- Historical language ("history", "past events", "has it flooded") needs flood history.
- Questions about rainfall totals or trends need precipitation history.
- General "flood risk" questions need every category.

Return JSON with exactly these keys:
{
  "needs_precipitation_forecast": bool,
  "needs_precipitation_history": bool,
  "needs_flood_history": bool,
  "needs_svi_data": bool,
  "needs_county_info": bool,
  "flood_event_filters": {"max_events": int or null, "max_distance_miles": number or null, "recent_only": bool},
  "svi_relevance_threshold": number between 0 and 1 (lower keeps more variables; default %.2f)
}
Use max_events %d unless the question asks for a specific number.

Query: %s`

const locationsSystem = `You extract place names from questions about flood risk.
Respond with a single JSON object and nothing else.`

const locationsPrompt = `List every geographic place (city, county, town, or address) mentioned in the question,
written so a geocoder can resolve it, including the state when it is stated or obvious.
Do not invent places. If there are none, return an empty list.

Return JSON: {"locations": ["place", ...]}

Query: %s`

const forecastSystem = `You decide whether a question asks for a short-term precipitation forecast.
Respond with a single JSON object and nothing else.`

const forecastPrompt = `If the question asks about upcoming rain or precipitation, set "requested" to true and
"hours" to the number of hours ahead it covers ("next 6 hours" is 6, "tomorrow" is 24,
"next 3 days" is 72). Use null hours when no span is given. Otherwise set "requested" to false.

Return JSON: {"requested": bool, "hours": int or null}

Query: %s`

const answerSystem = `You are a flood information assistant for emergency planners and residents.
Answer the question using only the data provided in the context.
Cite specific values (dates, distances, percentiles, amounts) from the data when you use them.
If a category is missing or listed under data_gaps, say that the information was not available rather than guessing.
SVI values are percentiles from 0 to 1 where higher means more vulnerable.
Keep the answer concise and practical.`

func intentRequest(query string, d domain.IntentDefaults) domain.ClassifyRequest {
	return domain.ClassifyRequest{
		Purpose: domain.PurposeIntent,
		System:  intentSystem,
		Prompt:  fmt.Sprintf(intentPrompt, d.SVIThreshold, d.MaxEvents, query),
	}
}

func locationsRequest(query string) domain.ClassifyRequest {
	return domain.ClassifyRequest{
		Purpose: domain.PurposeLocations,
		System:  locationsSystem,
		Prompt:  fmt.Sprintf(locationsPrompt, query),
	}
}

func forecastRequest(query string) domain.ClassifyRequest {
	return domain.ClassifyRequest{
		Purpose: domain.PurposeForecastWindow,
		System:  forecastSystem,
		Prompt:  fmt.Sprintf(forecastPrompt, query),
	}
}

// answerRequest serialises the filtered context into the user turn.
func answerRequest(query string, filtered domain.FilteredContext, temperature float64) (domain.GenerateRequest, error) {
	data, err := json.MarshalIndent(filtered.FilteredData, "", "  ")
	if err != nil {
		return domain.GenerateRequest{}, fmt.Errorf("serialize filtered context: %w", err)
	}
	return domain.GenerateRequest{
		System:      answerSystem,
		Prompt:      fmt.Sprintf("Query: %s\n\nContext data (JSON):\n%s", query, data),
		Temperature: temperature,
	}, nil
}

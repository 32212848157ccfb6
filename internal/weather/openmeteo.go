package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nugget/helion/internal/httpkit"
)

const (
	geocodingBaseURL = "https://geocoding-api.open-meteo.com"
	forecastBaseURL  = "https://api.open-meteo.com"
)

// OpenMeteo looks a city up with the Open-Meteo geocoding API and then
// reads its current conditions. No API key is required.
type OpenMeteo struct {
	geocodingURL string
	forecastURL  string
	httpClient   *http.Client
}

// NewOpenMeteo creates an Open-Meteo provider. A non-empty baseURL
// replaces both API hosts, which is how tests and self-hosted
// instances point it elsewhere.
func NewOpenMeteo(baseURL string) *OpenMeteo {
	o := &OpenMeteo{
		geocodingURL: geocodingBaseURL,
		forecastURL:  forecastBaseURL,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(10*time.Second),
			httpkit.WithRetry(1, 500*time.Millisecond),
		),
	}
	if baseURL != "" {
		base := strings.TrimRight(baseURL, "/")
		o.geocodingURL = base
		o.forecastURL = base
	}
	return o
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"`
		WeatherCode int     `json:"weathercode"`
	} `json:"current_weather"`
}

// Current implements [Provider].
func (o *OpenMeteo) Current(ctx context.Context, city string) (string, error) {
	var geo geocodingResponse
	q := url.Values{"name": {city}, "count": {"1"}, "format": {"json"}}
	if err := o.getJSON(ctx, o.geocodingURL+"/v1/search?"+q.Encode(), &geo); err != nil {
		return "", fmt.Errorf("geocode %s: %w", city, err)
	}
	if len(geo.Results) == 0 {
		return fmt.Sprintf("I could not find a place called %s.", city), nil
	}
	place := geo.Results[0]

	var fc forecastResponse
	fq := url.Values{
		"latitude":        {fmt.Sprintf("%.4f", place.Latitude)},
		"longitude":       {fmt.Sprintf("%.4f", place.Longitude)},
		"current_weather": {"true"},
	}
	if err := o.getJSON(ctx, o.forecastURL+"/v1/forecast?"+fq.Encode(), &fc); err != nil {
		return "", fmt.Errorf("forecast %s: %w", city, err)
	}

	cw := fc.CurrentWeather
	name := place.Name
	if place.Country != "" {
		name += ", " + place.Country
	}
	return fmt.Sprintf("The weather in %s is %s, %.1f°C with wind at %.0f km/h.",
		name, describeCode(cw.WeatherCode), cw.Temperature, cw.WindSpeed), nil
}

func (o *OpenMeteo) getJSON(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// describeCode maps WMO weather interpretation codes to words.
func describeCode(code int) string {
	switch {
	case code == 0:
		return "clear"
	case code <= 2:
		return "partly cloudy"
	case code == 3:
		return "overcast"
	case code == 45 || code == 48:
		return "foggy"
	case code >= 51 && code <= 57:
		return "drizzly"
	case code >= 61 && code <= 67, code >= 80 && code <= 82:
		return "rainy"
	case code >= 71 && code <= 77, code == 85 || code == 86:
		return "snowy"
	case code >= 95:
		return "stormy"
	default:
		return "unsettled"
	}
}

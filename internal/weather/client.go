// Package weather resolves city names from free text and fetches hourly
// forecasts from the Open-Meteo API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// City is a named location with coordinates.
type City struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// cities is the built-in gazetteer, matched in order. New York is the
// fallback when nothing matches.
var cities = []struct {
	key  string
	city City
}{
	{"london", City{"London", 51.5074, -0.1278}},
	{"paris", City{"Paris", 48.8566, 2.3522}},
	{"tokyo", City{"Tokyo", 35.6762, 139.6503}},
	{"new york", City{"New York", 40.7128, -74.0060}},
	{"san francisco", City{"San Francisco", 37.7749, -122.4194}},
	{"berlin", City{"Berlin", 52.52, 13.405}},
	{"sydney", City{"Sydney", -33.8688, 151.2093}},
	{"mumbai", City{"Mumbai", 19.076, 72.8777}},
	{"dubai", City{"Dubai", 25.2048, 55.2708}},
	{"singapore", City{"Singapore", 1.3521, 103.8198}},
	{"los angeles", City{"Los Angeles", 34.0522, -118.2437}},
	{"chicago", City{"Chicago", 41.8781, -87.6298}},
}

// defaultCity is used when the query names no known city.
var defaultCity = City{"New York", 40.7128, -74.0060}

// ResolveCity returns the first gazetteer city whose name appears in the
// query (case-insensitive substring), or New York when none matches.
func ResolveCity(query string) City {
	lower := strings.ToLower(query)
	for _, c := range cities {
		if strings.Contains(lower, c.key) {
			return c.city
		}
	}
	return defaultCity
}

// Snapshot is the reduced forecast returned to callers and serialized into
// prompts and API responses.
type Snapshot struct {
	Location              string    `json:"location"`
	Summary               string    `json:"summary"`
	AvgTemperature24h     float64   `json:"avg_temperature_24h"`
	MaxTemperature        float64   `json:"max_temperature"`
	MinTemperature        float64   `json:"min_temperature"`
	TemperatureVolatility float64   `json:"temperature_volatility"`
	AvgHumidity           float64   `json:"avg_humidity"`
	AvgWindSpeed          float64   `json:"avg_wind_speed"`
	HourlyTemps           []float64 `json:"hourly_temps"`
	Unit                  string    `json:"unit"`
}

// Client fetches forecasts from an Open-Meteo compatible endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client against the given forecast endpoint, e.g.
// https://api.open-meteo.com/v1/forecast.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type forecastResponse struct {
	Hourly struct {
		Temperature2m      []float64 `json:"temperature_2m"`
		RelativeHumidity2m []float64 `json:"relative_humidity_2m"`
		WindSpeed10m       []float64 `json:"wind_speed_10m"`
		Precipitation      []float64 `json:"precipitation"`
	} `json:"hourly"`
}

// Fetch resolves the city named in query, calls the forecast endpoint, and
// reduces the first 24 hourly samples into a Snapshot.
func (c *Client) Fetch(ctx context.Context, query string) (*Snapshot, error) {
	city := ResolveCity(query)

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%g", city.Latitude))
	params.Set("longitude", fmt.Sprintf("%g", city.Longitude))
	params.Set("hourly", "temperature_2m,relative_humidity_2m,wind_speed_10m,precipitation")
	params.Set("forecast_days", "3")
	params.Set("timezone", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating forecast request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching forecast: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("forecast API returned status %d: %s", resp.StatusCode, string(body))
	}

	var forecast forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&forecast); err != nil {
		return nil, fmt.Errorf("decoding forecast: %w", err)
	}

	// Empty series reduce to zeros rather than failing the fetch.
	temps := first24(forecast.Hourly.Temperature2m)
	if temps == nil {
		temps = []float64{}
	}
	humidity := first24(forecast.Hourly.RelativeHumidity2m)
	wind := first24(forecast.Hourly.WindSpeed10m)

	var minT, maxT float64
	if len(temps) > 0 {
		minT, maxT = temps[0], temps[0]
		for _, t := range temps {
			minT = math.Min(minT, t)
			maxT = math.Max(maxT, t)
		}
	}

	avgT := mean(temps)
	snapshot := &Snapshot{
		Location:              city.Name,
		AvgTemperature24h:     round1(avgT),
		MaxTemperature:        round1(maxT),
		MinTemperature:        round1(minT),
		TemperatureVolatility: round2(popStdDev(temps)),
		AvgHumidity:           round1(mean(humidity)),
		AvgWindSpeed:          round1(mean(wind)),
		HourlyTemps:           temps,
		Unit:                  "celsius",
	}
	snapshot.Summary = fmt.Sprintf("%s: Avg %.1f C, Range %.1f-%.1f C",
		city.Name, snapshot.AvgTemperature24h, snapshot.MinTemperature, snapshot.MaxTemperature)

	return snapshot, nil
}

func first24(samples []float64) []float64 {
	if len(samples) > 24 {
		return samples[:24]
	}
	return samples
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// popStdDev is the population standard deviation.
func popStdDev(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	m := mean(samples)
	var sum float64
	for _, s := range samples {
		d := s - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

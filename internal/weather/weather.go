// Package weather answers the get_weather tool, either from the public
// Open-Meteo API or from a set of canned reports for offline use.
package weather

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/nugget/helion/internal/tools"
)

// Provider reports current conditions for a city as a sentence.
type Provider interface {
	Current(ctx context.Context, city string) (string, error)
}

// Canned returns one of a few fixed reports at random. It needs no
// network and is the default when no weather backend is configured.
type Canned struct {
	// Pick returns an index in [0, n). Nil means math/rand.
	Pick func(n int) int
}

var cannedReports = []string{
	"The weather in %s is sunny with clear skies ☀️",
	"It’s raining in %s. Don’t forget your umbrella ☔",
	"%s is cloudy with a chance of showers ⛅",
}

// Current implements [Provider].
func (c Canned) Current(_ context.Context, city string) (string, error) {
	pick := c.Pick
	if pick == nil {
		pick = rand.IntN
	}
	return fmt.Sprintf(cannedReports[pick(len(cannedReports))], city), nil
}

// Tool returns the get_weather tool backed by p.
func Tool(p Provider) *tools.Tool {
	return &tools.Tool{
		Name:        "get_weather",
		Description: "Retrieves the current weather for a given city. Input: the city name, e.g. Paris.",
		Handler: func(ctx context.Context, input string) (string, error) {
			city := strings.Trim(strings.TrimSpace(input), `"'`)
			if city == "" {
				return "", fmt.Errorf("city is required")
			}
			return p.Current(ctx, city)
		},
	}
}

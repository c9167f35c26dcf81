package gridintensity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultFetchTimeout = 5 * time.Second

// Client fetches live grid carbon intensity for a zone from an
// electricity-maps style HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultFetchTimeout},
	}
}

type intensityResponse struct {
	Zone            string          `json:"zone"`
	CarbonIntensity decimal.Decimal `json:"carbonIntensity"`
	UpdatedAt       string          `json:"updatedAt"`
}

// Fetch returns the current intensity for the zone in gCO2e/kWh.
func (c *Client) Fetch(ctx context.Context, zone string) (decimal.Decimal, error) {
	if c == nil {
		return decimal.Zero, fmt.Errorf("grid intensity client not configured")
	}
	zone = strings.ToUpper(strings.TrimSpace(zone))
	if zone == "" {
		return decimal.Zero, fmt.Errorf("grid intensity zone is empty")
	}

	url := fmt.Sprintf("%s/v3/carbon-intensity/latest?zone=%s", c.baseURL, zone)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("grid intensity fetch for %s: unexpected status %d", zone, resp.StatusCode)
	}

	var body intensityResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("grid intensity fetch for %s: %w", zone, err)
	}
	if !body.CarbonIntensity.IsPositive() {
		return decimal.Zero, fmt.Errorf("grid intensity fetch for %s: non-positive intensity", zone)
	}
	return body.CarbonIntensity, nil
}

// Package steamstore provides access to the Steam storefront appdetails API,
// the secondary detail source. It supplies supplementary fields (review
// recommendations, Metacritic score, platform flags, DLC and achievement
// counts, localization count, content rating) that SteamSpy does not carry.
//
// The storefront enforces a much stricter rate limit than SteamSpy's detail
// endpoint, which is why the pipeline only consults it for high-priority
// identifiers. Like the steamspy package, expected absence is a nil Details
// with a nil error.
package steamstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client provides access to the Steam storefront appdetails endpoint
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Details holds the supplementary fields merged into high-priority records.
type Details struct {
	AppID            int64
	Recommendations  int64
	MetacriticScore  *int64 // nil when Steam reports no score
	PlatformWindows  bool
	PlatformMac      bool
	PlatformLinux    bool
	DLCCount         int64
	AchievementCount int64
	LanguageCount    int64
	RequiredAge      int64
}

// NewClient creates a new storefront client. delay is the minimum interval
// between requests.
func NewClient(baseURL string, delay, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Every(delay), 1),
	}
}

type appDetailsData struct {
	Recommendations struct {
		Total int64 `json:"total"`
	} `json:"recommendations"`
	Metacritic *struct {
		Score int64 `json:"score"`
	} `json:"metacritic"`
	Platforms struct {
		Windows bool `json:"windows"`
		Mac     bool `json:"mac"`
		Linux   bool `json:"linux"`
	} `json:"platforms"`
	DLC          []int64 `json:"dlc"`
	Achievements struct {
		Total int64 `json:"total"`
	} `json:"achievements"`
	SupportedLanguages string          `json:"supported_languages"`
	RequiredAge        json.RawMessage `json:"required_age"`
}

type appDetailsEnvelope struct {
	Success bool           `json:"success"`
	Data    appDetailsData `json:"data"`
}

// AppDetails fetches supplementary storefront fields for one app. It returns
// (nil, nil) when the storefront reports no data or the request failed;
// the error return is reserved for context cancellation.
func (c *Client) AppDetails(ctx context.Context, appid int64) (*Details, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s?appids=%d", c.baseURL, appid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	// The envelope is keyed by the appid as a string.
	var envelope map[string]appDetailsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, nil
	}

	entry, ok := envelope[strconv.FormatInt(appid, 10)]
	if !ok || !entry.Success {
		return nil, nil
	}

	data := entry.Data
	d := &Details{
		AppID:            appid,
		Recommendations:  data.Recommendations.Total,
		PlatformWindows:  data.Platforms.Windows,
		PlatformMac:      data.Platforms.Mac,
		PlatformLinux:    data.Platforms.Linux,
		DLCCount:         int64(len(data.DLC)),
		AchievementCount: data.Achievements.Total,
		LanguageCount:    CountLanguages(data.SupportedLanguages),
		RequiredAge:      parseRequiredAge(data.RequiredAge),
	}
	if data.Metacritic != nil {
		score := data.Metacritic.Score
		d.MetacriticScore = &score
	}
	return d, nil
}

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// CountLanguages counts the supported languages in Steam's language string,
// which embeds HTML markup ("English<strong>*</strong>, French, ...").
func CountLanguages(languages string) int64 {
	if languages == "" {
		return 0
	}
	clean := htmlTagPattern.ReplaceAllString(languages, "")
	var count int64
	for _, part := range strings.Split(clean, ",") {
		if strings.TrimSpace(part) != "" {
			count++
		}
	}
	return count
}

// parseRequiredAge handles Steam sending required_age as either a number or
// a string ("0", "18").
func parseRequiredAge(raw json.RawMessage) int64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

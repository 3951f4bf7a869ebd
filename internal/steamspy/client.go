// Package steamspy provides access to the SteamSpy API, the bulk listing and
// primary per-app detail source for the catalog.
//
// SteamSpy has two very different rate-limit regimes: the paginated "all"
// endpoint allows roughly one page per minute, while the per-app "appdetails"
// endpoint allows several requests per second. The client carries a separate
// limiter for each so callers never have to sleep manually.
//
// Expected absence (unknown app, timeout, non-2xx status, nameless payload)
// is reported as a nil Details with a nil error; it is not a failure.
package steamspy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client provides access to the SteamSpy API
type Client struct {
	baseURL       string
	httpClient    *http.Client
	pageLimiter   *rate.Limiter
	detailLimiter *rate.Limiter
}

// AppEntry is a single row of the paginated bulk listing.
type AppEntry struct {
	AppID int64
	Name  string
}

// Details is the normalized primary-source record for one app.
// Numeric fields default to zero when the payload omits them.
type Details struct {
	AppID             int64
	Name              string
	Developer         string
	Publisher         string
	Owners            int64 // midpoint of the reported ownership range
	AvgForeverMinutes int64
	MedForeverMinutes int64
	Avg2WeeksMinutes  int64
	Med2WeeksMinutes  int64
	Positive          int64
	Negative          int64
	CCU               int64
	ScoreRank         int64
	PriceCents        int64
	InitialPriceCents int64
	Genre             string
	TopTags           []string // top 10 tags by vote count, most voted first
}

// NewClient creates a new SteamSpy client. pageDelay and appDelay are the
// minimum intervals between bulk-page and per-app requests respectively.
func NewClient(baseURL string, pageDelay, appDelay, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		pageLimiter:   rate.NewLimiter(rate.Every(pageDelay), 1),
		detailLimiter: rate.NewLimiter(rate.Every(appDelay), 1),
	}
}

// flexInt decodes a JSON value that may arrive as a number, a numeric string,
// an empty string, or null. SteamSpy mixes all four across fields.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Non-numeric garbage normalizes to zero rather than failing the record.
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

type detailPayload struct {
	AppID          flexInt         `json:"appid"`
	Name           string          `json:"name"`
	Developer      string          `json:"developer"`
	Publisher      string          `json:"publisher"`
	Owners         string          `json:"owners"`
	AverageForever flexInt         `json:"average_forever"`
	MedianForever  flexInt         `json:"median_forever"`
	Average2Weeks  flexInt         `json:"average_2weeks"`
	Median2Weeks   flexInt         `json:"median_2weeks"`
	Positive       flexInt         `json:"positive"`
	Negative       flexInt         `json:"negative"`
	CCU            flexInt         `json:"ccu"`
	ScoreRank      flexInt         `json:"score_rank"`
	Price          flexInt         `json:"price"`
	InitialPrice   flexInt         `json:"initialprice"`
	Genre          string          `json:"genre"`
	Tags           json.RawMessage `json:"tags"`
}

type pageApp struct {
	AppID flexInt `json:"appid"`
	Name  string  `json:"name"`
}

// FetchPage retrieves one page of the bulk "all" listing. An empty result
// with a nil error means the end of SteamSpy's data has been reached.
// A non-nil error aborts further paging for this run.
func (c *Client) FetchPage(ctx context.Context, page int) ([]AppEntry, error) {
	if err := c.pageLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s?request=all&page=%d", c.baseURL, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page %d returned status %d", page, resp.StatusCode)
	}

	var apps map[string]pageApp
	if err := json.NewDecoder(resp.Body).Decode(&apps); err != nil {
		return nil, fmt.Errorf("failed to decode page %d: %w", page, err)
	}

	entries := make([]AppEntry, 0, len(apps))
	for key, app := range apps {
		id := int64(app.AppID)
		if id == 0 {
			// Some payloads omit the appid field and only key by it.
			if n, err := strconv.ParseInt(key, 10, 64); err == nil {
				id = n
			}
		}
		if id == 0 {
			continue
		}
		entries = append(entries, AppEntry{AppID: id, Name: app.Name})
	}

	// Map iteration order is random; sort so caps cut deterministically.
	sort.Slice(entries, func(i, j int) bool { return entries[i].AppID < entries[j].AppID })

	return entries, nil
}

// AppDetails fetches the per-app detail record. It returns (nil, nil) when
// the app does not exist or the request failed transiently; the caller drops
// the identifier from the current batch and retries on a later run. The error
// return is reserved for context cancellation.
func (c *Client) AppDetails(ctx context.Context, appid int64) (*Details, error) {
	if err := c.detailLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s?request=appdetails&appid=%d", c.baseURL, appid)
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

	var payload detailPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, nil
	}

	// SteamSpy answers removed or unknown apps with an empty or nameless
	// object rather than an error status.
	if payload.Name == "" {
		return nil, nil
	}

	dev := payload.Developer
	if dev == "" {
		dev = "Unknown"
	}
	pub := payload.Publisher
	if pub == "" {
		pub = "Unknown"
	}

	return &Details{
		AppID:             appid,
		Name:              payload.Name,
		Developer:         dev,
		Publisher:         pub,
		Owners:            ParseOwners(payload.Owners),
		AvgForeverMinutes: int64(payload.AverageForever),
		MedForeverMinutes: int64(payload.MedianForever),
		Avg2WeeksMinutes:  int64(payload.Average2Weeks),
		Med2WeeksMinutes:  int64(payload.Median2Weeks),
		Positive:          int64(payload.Positive),
		Negative:          int64(payload.Negative),
		CCU:               int64(payload.CCU),
		ScoreRank:         int64(payload.ScoreRank),
		PriceCents:        int64(payload.Price),
		InitialPriceCents: int64(payload.InitialPrice),
		Genre:             payload.Genre,
		TopTags:           topTags(payload.Tags, 10),
	}, nil
}

// ParseOwners converts SteamSpy's ownership range string (e.g.
// "20,000 .. 50,000") into the midpoint of the range. A single number is
// returned as-is; empty, "0", or unparseable input returns 0.
func ParseOwners(owners string) int64 {
	if owners == "" || owners == "0" {
		return 0
	}

	parts := strings.Split(strings.ReplaceAll(owners, ",", ""), "..")
	if len(parts) == 2 {
		low, errLow := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		high, errHigh := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if errLow != nil || errHigh != nil {
			return 0
		}
		return (low + high) / 2
	}

	n, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// topTags extracts the k most voted tags from the raw tags field. SteamSpy
// sends a {"tag": votes} object for tagged apps but an empty JSON array for
// untagged ones, so decoding has to tolerate both.
func topTags(raw json.RawMessage, k int) []string {
	if len(raw) == 0 {
		return nil
	}

	var votes map[string]int64
	if err := json.Unmarshal(raw, &votes); err != nil || len(votes) == 0 {
		return nil
	}

	type tagVote struct {
		tag   string
		votes int64
	}
	sorted := make([]tagVote, 0, len(votes))
	for tag, v := range votes {
		sorted = append(sorted, tagVote{tag: tag, votes: v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].votes != sorted[j].votes {
			return sorted[i].votes > sorted[j].votes
		}
		return sorted[i].tag < sorted[j].tag
	})

	if k > len(sorted) {
		k = len(sorted)
	}
	tags := make([]string, 0, k)
	for _, tv := range sorted[:k] {
		tags = append(tags, tv.tag)
	}
	return tags
}

package steamspy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(url string) *Client {
	// Millisecond limiters so tests don't wait out real delays.
	return NewClient(url, time.Millisecond, time.Millisecond, 5*time.Second)
}

func TestParseOwners(t *testing.T) {
	tests := []struct {
		name   string
		owners string
		want   int64
	}{
		{name: "range midpoint", owners: "20,000 .. 50,000", want: 35000},
		{name: "large range", owners: "1,000,000 .. 2,000,000", want: 1500000},
		{name: "zero", owners: "0", want: 0},
		{name: "empty", owners: "", want: 0},
		{name: "single number", owners: "42,000", want: 42000},
		{name: "garbage", owners: "lots", want: 0},
		{name: "half-garbage range", owners: "100 .. many", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseOwners(tt.owners); got != tt.want {
				t.Errorf("ParseOwners(%q) = %d, want %d", tt.owners, got, tt.want)
			}
		})
	}
}

func TestFetchPage(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("request") != "all" {
			t.Errorf("Expected request=all, got %s", query.Get("request"))
		}
		if query.Get("page") != "3" {
			t.Errorf("Expected page=3, got %s", query.Get("page"))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"570": {"appid": 570, "name": "Dota 2"},
			"10": {"appid": 10, "name": "Counter-Strike"},
			"730": {"appid": 730, "name": "Counter-Strike 2"}
		}`))
	}))
	defer mockServer.Close()

	client := testClient(mockServer.URL)
	entries, err := client.FetchPage(context.Background(), 3)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	// Sorted by appid ascending
	if entries[0].AppID != 10 || entries[1].AppID != 570 || entries[2].AppID != 730 {
		t.Errorf("Entries not sorted by appid: %+v", entries)
	}
	if entries[0].Name != "Counter-Strike" {
		t.Errorf("Unexpected name: %s", entries[0].Name)
	}
}

func TestFetchPageEmpty(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer mockServer.Close()

	client := testClient(mockServer.URL)
	entries, err := client.FetchPage(context.Background(), 99)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty page, got %d entries", len(entries))
	}
}

func TestFetchPageServerError(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer mockServer.Close()

	client := testClient(mockServer.URL)
	if _, err := client.FetchPage(context.Background(), 0); err == nil {
		t.Error("Expected error for 500 response, got nil")
	}
}

func TestAppDetails(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("request") != "appdetails" {
			t.Errorf("Expected request=appdetails, got %s", query.Get("request"))
		}
		if query.Get("appid") != "570" {
			t.Errorf("Expected appid=570, got %s", query.Get("appid"))
		}

		w.Header().Set("Content-Type", "application/json")
		// price arrives as a string, score_rank as an empty string; both are
		// real SteamSpy quirks.
		_, _ = w.Write([]byte(`{
			"appid": 570,
			"name": "Dota 2",
			"developer": "Valve",
			"publisher": "Valve",
			"owners": "100,000,000 .. 200,000,000",
			"average_forever": 36000,
			"median_forever": 1200,
			"average_2weeks": 1400,
			"median_2weeks": 800,
			"positive": 1500000,
			"negative": 300000,
			"ccu": 450000,
			"score_rank": "",
			"price": "0",
			"initialprice": "0",
			"genre": "Action, Free To Play",
			"tags": {"MOBA": 50000, "Free to Play": 40000, "Multiplayer": 30000}
		}`))
	}))
	defer mockServer.Close()

	client := testClient(mockServer.URL)
	d, err := client.AppDetails(context.Background(), 570)
	if err != nil {
		t.Fatalf("AppDetails failed: %v", err)
	}
	if d == nil {
		t.Fatal("Expected details, got nil")
	}

	if d.Name != "Dota 2" {
		t.Errorf("Unexpected name: %s", d.Name)
	}
	if d.Owners != 150000000 {
		t.Errorf("Expected owners midpoint 150000000, got %d", d.Owners)
	}
	if d.AvgForeverMinutes != 36000 {
		t.Errorf("Unexpected average playtime: %d", d.AvgForeverMinutes)
	}
	if d.ScoreRank != 0 {
		t.Errorf("Empty score_rank should normalize to 0, got %d", d.ScoreRank)
	}
	if len(d.TopTags) != 3 || d.TopTags[0] != "MOBA" {
		t.Errorf("Unexpected top tags: %v", d.TopTags)
	}
}

func TestAppDetailsAbsence(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "nameless payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"appid": 99999, "name": ""}`))
			},
		},
		{
			name: "empty payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "malformed payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockServer := httptest.NewServer(tt.handler)
			defer mockServer.Close()

			client := testClient(mockServer.URL)
			d, err := client.AppDetails(context.Background(), 99999)
			if err != nil {
				t.Fatalf("Expected nil error for absence, got %v", err)
			}
			if d != nil {
				t.Errorf("Expected nil details, got %+v", d)
			}
		})
	}
}

func TestAppDetailsDefaultsDeveloper(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"appid": 1, "name": "No Credits", "owners": "0", "tags": []}`))
	}))
	defer mockServer.Close()

	client := testClient(mockServer.URL)
	d, err := client.AppDetails(context.Background(), 1)
	if err != nil || d == nil {
		t.Fatalf("AppDetails failed: %v, %+v", err, d)
	}
	if d.Developer != "Unknown" || d.Publisher != "Unknown" {
		t.Errorf("Expected Unknown developer/publisher, got %q/%q", d.Developer, d.Publisher)
	}
	if len(d.TopTags) != 0 {
		t.Errorf("Empty tag array should yield no tags, got %v", d.TopTags)
	}
}

func TestTopTagsOrdering(t *testing.T) {
	raw := []byte(`{"Roguelike": 100, "Indie": 300, "Pixel Graphics": 200, "Deckbuilder": 100}`)
	tags := topTags(raw, 3)
	if len(tags) != 3 {
		t.Fatalf("Expected 3 tags, got %d", len(tags))
	}
	if tags[0] != "Indie" || tags[1] != "Pixel Graphics" {
		t.Errorf("Tags not ordered by votes: %v", tags)
	}
	// Tie between Roguelike and Deckbuilder breaks alphabetically.
	if tags[2] != "Deckbuilder" {
		t.Errorf("Expected alphabetical tie-break, got %s", tags[2])
	}
}

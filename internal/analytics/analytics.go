// Package analytics derives the metric and aggregate tables from the raw
// catalog. Everything here is pure computation over in-memory snapshots;
// persistence stays in the store package.
package analytics

import (
	"math"
	"strings"
	"time"

	"github.com/TosDaBoss/playintel/internal/store"
)

// Price tiers in presentation order.
const (
	TierFree     = "Free"
	TierBudget   = "Budget ($0-$5)"
	TierLow      = "Low ($5-$10)"
	TierMedium   = "Medium ($10-$20)"
	TierStandard = "Standard ($20-$30)"
	TierPremium  = "Premium ($30-$50)"
	TierAAA      = "AAA ($50+)"
)

// PriceCategory maps a price in cents to its tier.
func PriceCategory(priceCents int64) string {
	switch {
	case priceCents <= 0:
		return TierFree
	case priceCents <= 500:
		return TierBudget
	case priceCents <= 1000:
		return TierLow
	case priceCents <= 2000:
		return TierMedium
	case priceCents <= 3000:
		return TierStandard
	case priceCents <= 5000:
		return TierPremium
	default:
		return TierAAA
	}
}

var priceTierOrder = map[string]int{
	TierFree:     1,
	TierBudget:   2,
	TierLow:      3,
	TierMedium:   4,
	TierStandard: 5,
	TierPremium:  6,
	TierAAA:      7,
}

// PriceTierOrder returns the presentation rank of a price tier, cheapest
// first. Unknown tiers sort last.
func PriceTierOrder(tier string) int {
	if order, ok := priceTierOrder[tier]; ok {
		return order
	}
	return len(priceTierOrder) + 1
}

// Review categories, best first.
const (
	ReviewOverwhelminglyPositive = "Overwhelmingly Positive"
	ReviewVeryPositive           = "Very Positive"
	ReviewMostlyPositive         = "Mostly Positive"
	ReviewMixed                  = "Mixed"
	ReviewMostlyNegative         = "Mostly Negative"
	ReviewOverwhelminglyNegative = "Overwhelmingly Negative"
	ReviewInsufficient           = "Insufficient Reviews"
)

// RatingPercentage is the positive share of all reviews, one decimal.
// It is nil when there are no reviews at all.
func RatingPercentage(positive, negative int64) *float64 {
	total := positive + negative
	if total <= 0 {
		return nil
	}
	pct := round1(100 * float64(positive) / float64(total))
	return &pct
}

// ReviewCategory buckets a review population into the familiar storefront
// bands. Fewer than 10 total reviews is not enough signal for any band.
func ReviewCategory(positive, negative int64) string {
	total := positive + negative
	if total < 10 {
		return ReviewInsufficient
	}
	pct := 100 * float64(positive) / float64(total)
	switch {
	case pct >= 95:
		return ReviewOverwhelminglyPositive
	case pct >= 80:
		return ReviewVeryPositive
	case pct >= 70:
		return ReviewMostlyPositive
	case pct >= 40:
		return ReviewMixed
	case pct >= 20:
		return ReviewMostlyNegative
	default:
		return ReviewOverwhelminglyNegative
	}
}

var reviewTierOrder = map[string]int{
	ReviewOverwhelminglyPositive: 1,
	ReviewVeryPositive:           2,
	ReviewMostlyPositive:         3,
	ReviewMixed:                  4,
	ReviewMostlyNegative:         5,
	ReviewOverwhelminglyNegative: 6,
	ReviewInsufficient:           7,
}

// ReviewTierOrder returns the presentation rank of a review band, best
// first. Unknown bands sort last.
func ReviewTierOrder(band string) int {
	if order, ok := reviewTierOrder[band]; ok {
		return order
	}
	return len(reviewTierOrder) + 1
}

// Owner tiers in ascending size order.
const (
	OwnersMicro       = "Micro (<20k)"
	OwnersSmall       = "Small (20k-100k)"
	OwnersMid         = "Mid (100k-500k)"
	OwnersLarge       = "Large (500k-1M)"
	OwnersHit         = "Hit (1M-5M)"
	OwnersBlockbuster = "Blockbuster (5M+)"
)

// OwnerTier maps an ownership estimate to its size bucket.
func OwnerTier(owners int64) string {
	switch {
	case owners < 20_000:
		return OwnersMicro
	case owners < 100_000:
		return OwnersSmall
	case owners < 500_000:
		return OwnersMid
	case owners < 1_000_000:
		return OwnersLarge
	case owners < 5_000_000:
		return OwnersHit
	default:
		return OwnersBlockbuster
	}
}

var ownerTierOrder = map[string]int{
	OwnersMicro:       1,
	OwnersSmall:       2,
	OwnersMid:         3,
	OwnersLarge:       4,
	OwnersHit:         5,
	OwnersBlockbuster: 6,
}

// OwnerTierOrder returns the presentation rank of an owner tier, smallest
// first. Unknown tiers sort last.
func OwnerTierOrder(tier string) int {
	if order, ok := ownerTierOrder[tier]; ok {
		return order
	}
	return len(ownerTierOrder) + 1
}

// SplitList tokenizes a comma-joined list, trimming whitespace and dropping
// empty entries.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// DeriveMetric computes the metric row for one catalog entry. Apps without
// an ownership estimate carry no signal and derive to nil.
func DeriveMetric(app *store.App, now time.Time) *store.GameMetric {
	if app.Owners <= 0 {
		return nil
	}

	priceUSD := 0.0
	if app.PriceCents > 0 {
		priceUSD = float64(app.PriceCents) / 100
	}
	initialPriceUSD := 0.0
	if app.InitialPriceCents > 0 {
		initialPriceUSD = float64(app.InitialPriceCents) / 100
	}

	m := &store.GameMetric{
		AppID:            app.AppID,
		Name:             app.Name,
		Developer:        app.Developer,
		Publisher:        app.Publisher,
		PriceUSD:         priceUSD,
		InitialPriceUSD:  initialPriceUSD,
		PriceCategory:    PriceCategory(app.PriceCents),
		TotalOwners:      app.Owners,
		PositiveReviews:  app.Positive,
		NegativeReviews:  app.Negative,
		TotalReviews:     app.Positive + app.Negative,
		RatingPercentage: RatingPercentage(app.Positive, app.Negative),
		ReviewCategory:   ReviewCategory(app.Positive, app.Negative),
		CCU:              app.CCU,
		Genres:           SplitList(app.Genres),
		TopTags:          SplitList(app.TopTags),
		CreatedAt:        app.CreatedAt,
		UpdatedAt:        now,
	}

	if app.AvgForeverMinutes > 0 {
		hours := float64(app.AvgForeverMinutes) / 60
		m.AvgHoursPlayed = &hours

		if app.PriceCents > 0 {
			hpd := round2(hours / priceUSD)
			m.HoursPerDollar = &hpd
		}
		engagement := round2(math.Log10(float64(app.Owners)+1) * hours)
		m.EngagementScore = &engagement
	}
	if app.MedForeverMinutes > 0 {
		hours := float64(app.MedForeverMinutes) / 60
		m.MedianHoursPlayed = &hours
	}

	return m
}

// DeriveMetrics derives the full metric table from a catalog snapshot.
func DeriveMetrics(apps []store.App, now time.Time) []store.GameMetric {
	metrics := make([]store.GameMetric, 0, len(apps))
	for i := range apps {
		if m := DeriveMetric(&apps[i], now); m != nil {
			metrics = append(metrics, *m)
		}
	}
	return metrics
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package analytics

import (
	"sort"

	"github.com/TosDaBoss/playintel/internal/store"
)

// Aggregate families. Each family is a grouping of the metric table that
// gets its own logical table name in the refresh log.
const (
	FamilyPriceTier  = "price_tier"
	FamilyTag        = "tag"
	FamilyGenre      = "genre"
	FamilyOwnerTier  = "owner_tier"
	FamilyReviewTier = "review_tier"
	FamilyTagPrice   = "tag_price"
	FamilyGenrePrice = "genre_price"
	FamilyDeveloper  = "developer"
)

// Families lists every aggregate family in rebuild order.
var Families = []string{
	FamilyPriceTier,
	FamilyTag,
	FamilyGenre,
	FamilyOwnerTier,
	FamilyReviewTier,
	FamilyTagPrice,
	FamilyGenrePrice,
	FamilyDeveloper,
}

// FamilyTableName returns the logical table name a family reports under in
// the refresh log.
func FamilyTableName(family string) string {
	switch family {
	case FamilyTagPrice:
		return "agg_tag_price_matrix"
	case FamilyGenrePrice:
		return "agg_genre_price_performance"
	default:
		return "agg_" + family + "_stats"
	}
}

// Minimum group sizes. Tags and genres need more samples before a group is
// worth reporting; everything else uses the smaller floor.
func familyFloor(family string) int {
	switch family {
	case FamilyTag, FamilyGenre:
		return 10
	default:
		return 5
	}
}

const maxGroupKeyLen = 100

type groupKey struct {
	group string
	sub   string
}

type accumulator struct {
	owners  []int64
	ratings []float64
	prices  []float64
}

func (a *accumulator) add(m *store.GameMetric) {
	a.owners = append(a.owners, m.TotalOwners)
	if m.RatingPercentage != nil {
		a.ratings = append(a.ratings, *m.RatingPercentage)
	}
	a.prices = append(a.prices, m.PriceUSD)
}

// BuildFamily computes one aggregate family from a metric snapshot.
func BuildFamily(family string, metrics []store.GameMetric) []store.AggregateStat {
	groups := make(map[groupKey]*accumulator)
	add := func(group, sub string, m *store.GameMetric) {
		if group == "" {
			return
		}
		if len(group) > maxGroupKeyLen {
			group = group[:maxGroupKeyLen]
		}
		key := groupKey{group: group, sub: sub}
		acc, ok := groups[key]
		if !ok {
			acc = &accumulator{}
			groups[key] = acc
		}
		acc.add(m)
	}

	for i := range metrics {
		m := &metrics[i]
		switch family {
		case FamilyPriceTier:
			add(m.PriceCategory, "", m)
		case FamilyTag:
			for _, tag := range m.TopTags {
				add(tag, "", m)
			}
		case FamilyGenre:
			for _, genre := range m.Genres {
				add(genre, "", m)
			}
		case FamilyOwnerTier:
			add(OwnerTier(m.TotalOwners), "", m)
		case FamilyReviewTier:
			add(m.ReviewCategory, "", m)
		case FamilyTagPrice:
			for _, tag := range m.TopTags {
				add(tag, m.PriceCategory, m)
			}
		case FamilyGenrePrice:
			for _, genre := range m.Genres {
				add(genre, m.PriceCategory, m)
			}
		case FamilyDeveloper:
			if m.Developer != "Unknown" {
				add(m.Developer, "", m)
			}
		}
	}

	floor := familyFloor(family)
	rows := make([]store.AggregateStat, 0, len(groups))
	for key, acc := range groups {
		if len(acc.owners) < floor {
			continue
		}
		rows = append(rows, buildRow(family, key, acc))
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SortOrder != rows[j].SortOrder {
			return rows[i].SortOrder < rows[j].SortOrder
		}
		if rows[i].GroupKey != rows[j].GroupKey {
			return rows[i].GroupKey < rows[j].GroupKey
		}
		return rows[i].SubKey < rows[j].SubKey
	})
	return rows
}

// BuildAggregates computes every family from one metric snapshot.
func BuildAggregates(metrics []store.GameMetric) map[string][]store.AggregateStat {
	out := make(map[string][]store.AggregateStat, len(Families))
	for _, family := range Families {
		out[family] = BuildFamily(family, metrics)
	}
	return out
}

func buildRow(family string, key groupKey, acc *accumulator) store.AggregateStat {
	row := store.AggregateStat{
		Family:    family,
		GroupKey:  key.group,
		SubKey:    key.sub,
		SortOrder: groupSortOrder(family, key),
		GameCount: int64(len(acc.owners)),
	}

	var ownersSum int64
	for _, o := range acc.owners {
		ownersSum += o
		if o >= 1_000_000 {
			row.Games1MPlusOwners++
		}
	}
	row.AvgOwners = float64(ownersSum / int64(len(acc.owners)))

	sorted := append([]int64{}, acc.owners...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	row.MedianOwners = float64(sorted[len(sorted)/2])

	hit100k := 0
	for _, o := range acc.owners {
		if o >= 100_000 {
			hit100k++
		}
	}
	row.SuccessRate100K = round2(100 * float64(hit100k) / float64(len(acc.owners)))

	if len(acc.ratings) > 0 {
		var sum float64
		for _, r := range acc.ratings {
			sum += r
			if r >= 90 {
				row.Games90PlusRating++
			}
		}
		avg := round2(sum / float64(len(acc.ratings)))
		row.AvgRating = &avg
	}
	if len(acc.prices) > 0 {
		var sum float64
		for _, p := range acc.prices {
			sum += p
		}
		avg := round2(sum / float64(len(acc.prices)))
		row.AvgPrice = &avg
	}

	return row
}

// groupSortOrder supplies the presentation rank for families with a natural
// ordering. Name-keyed families sort alphabetically instead.
func groupSortOrder(family string, key groupKey) int {
	switch family {
	case FamilyPriceTier:
		return PriceTierOrder(key.group)
	case FamilyOwnerTier:
		return OwnerTierOrder(key.group)
	case FamilyReviewTier:
		return ReviewTierOrder(key.group)
	case FamilyTagPrice, FamilyGenrePrice:
		return PriceTierOrder(key.sub)
	default:
		return 0
	}
}

package store

import (
	"time"

	"gorm.io/datatypes"
)

// App is one catalog row. Primary-source fields are refreshed on every
// enrichment; secondary-source fields only when the storefront was consulted.
type App struct {
	AppID             int64  `gorm:"primaryKey;column:appid"`
	Name              string `gorm:"column:name"`
	Developer         string `gorm:"column:developer"`
	Publisher         string `gorm:"column:publisher"`
	Owners            int64  `gorm:"column:owners"`
	AvgForeverMinutes int64  `gorm:"column:avg_forever_minutes"`
	MedForeverMinutes int64  `gorm:"column:med_forever_minutes"`
	Avg2WeeksMinutes  int64  `gorm:"column:avg_2weeks_minutes"`
	Med2WeeksMinutes  int64  `gorm:"column:med_2weeks_minutes"`
	Positive          int64  `gorm:"column:positive"`
	Negative          int64  `gorm:"column:negative"`
	CCU               int64  `gorm:"column:ccu"`
	PriceCents        int64  `gorm:"column:price_cents"`
	InitialPriceCents int64  `gorm:"column:initial_price_cents"`
	ScoreRank         int64  `gorm:"column:score_rank"`
	Genres            string `gorm:"column:genres"`
	TopTags           string `gorm:"column:top_tags"`

	Recommendations  int64  `gorm:"column:recommendations"`
	MetacriticScore  *int64 `gorm:"column:metacritic_score"`
	PlatformWindows  bool   `gorm:"column:platform_windows"`
	PlatformMac      bool   `gorm:"column:platform_mac"`
	PlatformLinux    bool   `gorm:"column:platform_linux"`
	DLCCount         int64  `gorm:"column:dlc_count"`
	AchievementCount int64  `gorm:"column:achievement_count"`
	LanguageCount    int64  `gorm:"column:language_count"`
	RequiredAge      int64  `gorm:"column:required_age"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (App) TableName() string {
	return "steam_apps"
}

// GameMetric is one derived analytics row. The table is rebuilt from scratch
// on every analytics run; nullable fields stay nil when an input is missing.
type GameMetric struct {
	AppID             int64                       `gorm:"primaryKey;column:appid"`
	Name              string                      `gorm:"column:name"`
	Developer         string                      `gorm:"column:developer"`
	Publisher         string                      `gorm:"column:publisher"`
	PriceUSD          float64                     `gorm:"column:price_usd"`
	InitialPriceUSD   float64                     `gorm:"column:initialprice_usd"`
	PriceCategory     string                      `gorm:"column:price_category"`
	TotalOwners       int64                       `gorm:"column:total_owners"`
	PositiveReviews   int64                       `gorm:"column:positive_reviews"`
	NegativeReviews   int64                       `gorm:"column:negative_reviews"`
	TotalReviews      int64                       `gorm:"column:total_reviews"`
	RatingPercentage  *float64                    `gorm:"column:rating_percentage"`
	ReviewCategory    string                      `gorm:"column:review_category"`
	AvgHoursPlayed    *float64                    `gorm:"column:avg_hours_played"`
	MedianHoursPlayed *float64                    `gorm:"column:median_hours_played"`
	CCU               int64                       `gorm:"column:ccu"`
	HoursPerDollar    *float64                    `gorm:"column:hours_per_dollar"`
	EngagementScore   *float64                    `gorm:"column:engagement_score"`
	Genres            datatypes.JSONSlice[string] `gorm:"column:genres"`
	TopTags           datatypes.JSONSlice[string] `gorm:"column:top_tags"`
	CreatedAt         time.Time                   `gorm:"column:created_at"`
	UpdatedAt         time.Time                   `gorm:"column:updated_at"`
}

func (GameMetric) TableName() string {
	return "fact_game_metrics"
}

// AggregateStat is one row of the uniform per-group aggregate table.
// Family names which grouping it belongs to (price_tier, tag, genre,
// owner_tier, review_tier, tag_price, genre_price, developer); SubKey is
// empty except for the cross families, where it carries the price tier.
type AggregateStat struct {
	ID                int64    `gorm:"primaryKey;autoIncrement;column:id"`
	Family            string   `gorm:"column:family;index"`
	GroupKey          string   `gorm:"column:group_key"`
	SubKey            string   `gorm:"column:sub_key"`
	SortOrder         int      `gorm:"column:sort_order"`
	GameCount         int64    `gorm:"column:game_count"`
	AvgOwners         float64  `gorm:"column:avg_owners"`
	MedianOwners      float64  `gorm:"column:median_owners"`
	AvgRating         *float64 `gorm:"column:avg_rating"`
	AvgPrice          *float64 `gorm:"column:avg_price"`
	Games90PlusRating int64    `gorm:"column:games_90plus_rating"`
	Games1MPlusOwners int64    `gorm:"column:games_1m_plus_owners"`
	SuccessRate100K   float64  `gorm:"column:success_rate_100k"`
}

func (AggregateStat) TableName() string {
	return "agg_group_stats"
}

// RefreshLog records when a derived table (or aggregate family) was last
// rebuilt, how many rows it produced, and how long the rebuild took.
type RefreshLog struct {
	Name                   string    `gorm:"primaryKey;column:table_name"`
	LastRefreshed          time.Time `gorm:"column:last_refreshed"`
	RowCount               int64     `gorm:"column:row_count"`
	RefreshDurationSeconds float64   `gorm:"column:refresh_duration_seconds"`
}

func (RefreshLog) TableName() string {
	return "agg_refresh_log"
}

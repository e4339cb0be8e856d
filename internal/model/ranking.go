package model

import "time"

// RankingEntry is one row of a ranking page: 1-based rank, accumulated score
// and the hydrated product.
type RankingEntry struct {
	Rank    int64         `json:"rank"`
	Score   float64       `json:"score"`
	Product ProductDetail `json:"product"`
}

// RankingPage is the paginated ranking view.
type RankingPage struct {
	Date    string         `json:"date"`
	Entries []RankingEntry `json:"entries"`
	Page    int            `json:"page"`
	Size    int            `json:"size"`
	HasNext bool           `json:"has_next"`
	Source  RankingSource  `json:"source"`
}

// RankingSource names which rung of the degradation ladder served a page.
type RankingSource string

const (
	RankingSourceLive     RankingSource = "live"
	RankingSourceSnapshot RankingSource = "snapshot"
	RankingSourceDefault  RankingSource = "default"
)

// SnapshotItem is one persisted ranking row. Snapshots carry hydrated
// product fields so they can serve pages while Redis is down.
type SnapshotItem struct {
	Rank      int64   `json:"rank"`
	Score     float64 `json:"score"`
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Price     int64   `json:"price"`
	BrandID   int64   `json:"brand_id"`
	BrandName string  `json:"brand_name"`
}

// RankingSnapshot is the persisted top-K copy for one date. A newer write
// supersedes older rows of the same date.
type RankingSnapshot struct {
	Date      time.Time      `json:"date"`
	Items     []SnapshotItem `json:"items"`
	TotalSize int64          `json:"total_size"`
	CreatedAt time.Time      `json:"-"`
}

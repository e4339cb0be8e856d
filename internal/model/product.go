package model

import "time"

// Product is the catalog aggregate. Stock is mutated under a row-exclusive
// lock. LikeCount is a denormalized cache of the likes table, rebuilt by the
// periodic sync batch; it is eventually consistent.
type Product struct {
	ID        int64     `json:"id"`
	BrandID   int64     `json:"brand_id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Stock     int64     `json:"stock"`
	LikeCount int64     `json:"like_count"`
	CreatedAt time.Time `json:"-"`
}

// Brand is immutable after creation.
type Brand struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"-"`
}

// Like links a user to a product. The (UserID, ProductID) pair is unique.
type Like struct {
	UserID    int64     `json:"user_id"`
	ProductID int64     `json:"product_id"`
	CreatedAt time.Time `json:"-"`
}

// ProductDetail is the API shape for a single product with its brand.
type ProductDetail struct {
	Product
	BrandName string `json:"brand_name"`
}

// ProductPage is a paginated catalog listing.
type ProductPage struct {
	Items   []Product `json:"items"`
	Page    int       `json:"page"`
	Size    int       `json:"size"`
	HasNext bool      `json:"has_next"`
}

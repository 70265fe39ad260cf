package types

import (
	"time"
)

type Product struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	ShortDescription string   `json:"short_description,omitempty"`
	Price            float64  `json:"price"`
	Image            string   `json:"image,omitempty"`
	Images           []string `json:"images,omitempty"`
	Category         string   `json:"category,omitempty"`
	Featured         bool     `json:"featured"`
	Status           string   `json:"status"`
	Stock            int      `json:"stock"`
	CreatedAt        string   `json:"created_at,omitempty"`
}

type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	ProductNum  int    `json:"product_num,omitempty"`
}

// ProductRef is the minimal product shape cart and wishlist mutations
// accept; the collections denormalize it into their own items.
type ProductRef struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Image string  `json:"image,omitempty"`
}

type CartItem struct {
	ID           string  `json:"id"`
	ProductID    string  `json:"product_id"`
	ProductName  string  `json:"product_name"`
	ProductPrice float64 `json:"product_price"`
	ProductImage string  `json:"product_image,omitempty"`
	Quantity     int     `json:"quantity"`
	AddedAt      string  `json:"added_at"`
}

type WishlistItem struct {
	ID           string  `json:"id"`
	ProductID    string  `json:"product_id"`
	ProductName  string  `json:"product_name"`
	ProductPrice float64 `json:"product_price"`
	ProductImage string  `json:"product_image,omitempty"`
	AddedAt      string  `json:"added_at"`
}

// ProductFilters is the value object catalog queries and cache keys are
// derived from. Zero values mean "not filtered"; pointers distinguish
// unset from explicit zero for price and featured.
type ProductFilters struct {
	Category  string   `json:"category,omitempty"`
	Search    string   `json:"search,omitempty"`
	MinPrice  *float64 `json:"min_price,omitempty"`
	MaxPrice  *float64 `json:"max_price,omitempty"`
	Featured  *bool    `json:"featured,omitempty"`
	SortBy    string   `json:"sort_by,omitempty"`
	SortOrder string   `json:"sort_order,omitempty"`
	Status    string   `json:"status,omitempty"`
	Page      int      `json:"page,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

type ProductPage struct {
	Items   []Product `json:"items"`
	Total   int64     `json:"total"`
	HasMore bool      `json:"has_more"`
	Page    int       `json:"page"`
}

type CategoryPage struct {
	Items []Category `json:"items"`
	Total int64      `json:"total"`
}

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

// Identity is the authenticated principal as the session layer hands it
// over. Metadata carries provider claims (the role flag lives there).
type Identity struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type UserProfile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	FullName  string `json:"full_name,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type SuggestionKind string

const (
	SuggestionProduct  SuggestionKind = "product"
	SuggestionCategory SuggestionKind = "category"
	SuggestionPopular  SuggestionKind = "popular"
)

type Suggestion struct {
	Kind  SuggestionKind `json:"kind"`
	Text  string         `json:"text"`
	RefID string         `json:"ref_id,omitempty"`
}

type PriceBucket struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// Facets are computed over the fetched page only, so counts understate
// the global distribution for large result sets.
type Facets struct {
	Categories map[string]int `json:"categories"`
	Prices     []PriceBucket  `json:"prices"`
}

type ViewState struct {
	Loading   bool      `json:"loading"`
	Error     string    `json:"error,omitempty"`
	Total     int64     `json:"total"`
	HasMore   bool      `json:"has_more"`
	Page      int       `json:"page"`
	FetchedAt time.Time `json:"fetched_at"`
}

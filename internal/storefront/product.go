package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"storefront-core/internal/cart"
	"storefront-core/internal/logger"

	"go.uber.org/zap"
)

// Search types understood by /products/search.
const (
	SearchText      = "text"
	SearchCategory  = "category"
	SearchExclusive = "exclusive"
	SearchTrending  = "trending"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
	// maxLookupPages bounds FindProduct when the backend keeps paging.
	maxLookupPages = 50
)

// Images accepts either a list of urls or a single url string.
type Images []string

func (im *Images) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*im = list
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("storefront: images: %w", err)
	}
	if one == "" {
		*im = nil
		return nil
	}
	*im = Images{one}
	return nil
}

type Product struct {
	ID           string              `json:"_id"`
	Name         string              `json:"name"`
	Images       Images              `json:"images,omitempty"`
	Volumes      []cart.VolumeOption `json:"volume,omitempty"`
	SalePrice    float64             `json:"salePrice,omitempty"`
	RegularPrice float64             `json:"regularPrice,omitempty"`
	IsFeatured   bool                `json:"isFeatured,omitempty"`
}

// EffectivePrice is the listing price: the sale price when one is set.
func (p Product) EffectivePrice() float64 {
	if p.SalePrice > 0 {
		return p.SalePrice
	}
	return p.RegularPrice
}

// Candidate converts p into the input accepted by the cart.
func (p Product) Candidate() cart.Candidate {
	return cart.Candidate{
		ProductID:     p.ID,
		Name:          p.Name,
		Images:        append([]string(nil), p.Images...),
		VolumeOptions: append([]cart.VolumeOption(nil), p.Volumes...),
	}
}

type SearchFilters struct {
	Category    string   `json:"category,omitempty"`
	SubCategory string   `json:"subCategory,omitempty"`
	IsFeatured  bool     `json:"isFeatured,omitempty"`
	MinPrice    *float64 `json:"minPrice,omitempty"`
	MaxPrice    *float64 `json:"maxPrice,omitempty"`
	Source      string   `json:"source,omitempty"`
}

// Sort orders results by name and/or price, each "asc" or "desc".
type Sort struct {
	Name  string `json:"name,omitempty"`
	Price string `json:"price,omitempty"`
}

// ParseSort merges sort option ids (nameAsc, nameDesc, priceLow, priceHigh).
// A later id overrides an earlier one on the same field.
func ParseSort(ids ...string) (*Sort, error) {
	var s Sort
	for _, id := range ids {
		switch strings.TrimSpace(id) {
		case "":
		case "nameAsc":
			s.Name = "asc"
		case "nameDesc":
			s.Name = "desc"
		case "priceLow":
			s.Price = "asc"
		case "priceHigh":
			s.Price = "desc"
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownSort, id)
		}
	}
	if s == (Sort{}) {
		return nil, nil
	}
	return &s, nil
}

type SearchParams struct {
	SearchType string         `json:"searchType"`
	UserID     string         `json:"userId,omitempty"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	Query      string         `json:"query,omitempty"`
	Filters    *SearchFilters `json:"filters,omitempty"`
	Sort       *Sort          `json:"sort,omitempty"`
}

func (p SearchParams) withDefaults() SearchParams {
	if p.SearchType == "" {
		p.SearchType = SearchText
	}
	if p.Page < 1 {
		p.Page = defaultPage
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	return p
}

type ProductPage struct {
	Products   []Product `json:"products"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
	Total      int       `json:"total,omitempty"`
}

// NextPage returns the page to request after p, or 0 on the last page.
func (p ProductPage) NextPage() int {
	if p.Page < p.TotalPages {
		return p.Page + 1
	}
	return 0
}

type productPageEnvelope struct {
	Data ProductPage `json:"data"`
}

type Subcategory struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type Category struct {
	ID            string        `json:"_id"`
	Name          string        `json:"name"`
	Subcategories []Subcategory `json:"subcategories,omitempty"`
}

type categoriesEnvelope struct {
	Data []Category `json:"data"`
}

// SearchProducts runs one page of a catalog search. Page and page size
// default to 1 and 10, the search type to text.
func (c *Client) SearchProducts(ctx context.Context, params SearchParams) (*ProductPage, error) {
	params = params.withDefaults()

	var env productPageEnvelope
	if err := c.do(ctx, http.MethodPost, "/products/search", params, &env); err != nil {
		return nil, err
	}

	page := env.Data
	if page.Page == 0 {
		page.Page = params.Page
	}
	if page.Products == nil {
		page.Products = []Product{}
	}
	return &page, nil
}

// FindProduct pages through the results of params until it meets id.
func (c *Client) FindProduct(ctx context.Context, id string, params SearchParams) (*Product, error) {
	if id == "" {
		return nil, ErrMissingProductID
	}
	params = params.withDefaults()

	for i := 0; i < maxLookupPages; i++ {
		page, err := c.SearchProducts(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, p := range page.Products {
			if p.ID == id {
				return &p, nil
			}
		}
		next := page.NextPage()
		if next == 0 || next <= params.Page {
			break
		}
		params.Page = next
	}

	logger.FromCtx(ctx).Debug("product not found", zap.String("product_id", id), zap.String("query", params.Query))
	return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
}

// Categories lists the catalog categories with their subcategories.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var env categoriesEnvelope
	if err := c.do(ctx, http.MethodGet, "/products/categories", nil, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return []Category{}, nil
	}
	return env.Data, nil
}

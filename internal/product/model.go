package product

import "github.com/shopspring/decimal"

// GST classes stored in product_variants.gst_category.
const (
	GSTCategory5      = "gst_5"
	GSTCategory18     = "gst_18"
	GSTCategoryExempt = "exempt"
)

// Variant is the sellable unit. Order intake reads price and gst_category from
// here, never from the client.
type Variant struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name"`
	Name          string          `json:"name"`
	SKU           *string         `json:"sku,omitempty"`
	Price         decimal.Decimal `json:"price"`
	GSTCategory   string          `json:"gst_category"`
	StockQuantity int             `json:"stock_quantity"`
	ImageURL      *string         `json:"image_url,omitempty"`
	IsActive      bool            `json:"is_active"`
}

package product

import (
	"context"
	"database/sql"
	"errors"

	"storefront-be/internal/apperr"
	"storefront-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	GetVariant(ctx context.Context, variantID string) (*Variant, error)
	GetVariantsByIDs(ctx context.Context, variantIDs []string) (map[string]*Variant, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const variantColumns = `
	v.id, v.product_id, p.name, v.name, v.sku, v.price,
	v.gst_category, v.stock_quantity, COALESCE(v.image_url, p.image_url), v.is_active
`

func scanVariant(row interface{ Scan(...any) error }) (*Variant, error) {
	var v Variant
	var sku, image sql.NullString
	err := row.Scan(
		&v.ID, &v.ProductID, &v.ProductName, &v.Name, &sku, &v.Price,
		&v.GSTCategory, &v.StockQuantity, &image, &v.IsActive,
	)
	if err != nil {
		return nil, err
	}
	if sku.Valid {
		v.SKU = &sku.String
	}
	if image.Valid {
		v.ImageURL = &image.String
	}
	return &v, nil
}

func (r *repository) GetVariant(ctx context.Context, variantID string) (*Variant, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetVariant"),
		zap.String("variant_id", variantID),
	)

	row := r.db.QueryRowContext(ctx, `
		SELECT `+variantColumns+`
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1
	`, variantID)

	v, err := scanVariant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("variant %s not found", variantID)
	}
	if err != nil {
		log.Error("failed to load variant", zap.Error(err))
		return nil, apperr.Database(err, "load variant")
	}
	return v, nil
}

// GetVariantsByIDs loads every requested variant in one query. Missing ids are
// simply absent from the map.
func (r *repository) GetVariantsByIDs(ctx context.Context, variantIDs []string) (map[string]*Variant, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetVariantsByIDs"),
		zap.Int("count", len(variantIDs)),
	)

	out := make(map[string]*Variant, len(variantIDs))
	if len(variantIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+variantColumns+`
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id::text = ANY($1)
	`, pq.Array(variantIDs))
	if err != nil {
		log.Error("failed to query variants", zap.Error(err))
		return nil, apperr.Database(err, "load variants")
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			log.Error("failed to scan variant", zap.Error(err))
			return nil, apperr.Database(err, "scan variant")
		}
		out[v.ID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err, "iterate variants")
	}

	return out, nil
}

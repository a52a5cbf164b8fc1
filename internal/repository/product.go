package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"tea-storefront/internal/entity"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db}
}

const productColumns = `id, name, category, description, price, base_price_per_kg, unit, kg_step, min_quantity, max_quantity, price_tiers, in_stock`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*entity.Product, error) {
	var (
		product entity.Product
		id      int64
		unit    string
		tiers   string
	)
	err := row.Scan(&id, &product.Name, &product.Category, &product.Description, &product.Price, &product.BasePricePerKg,
		&unit, &product.KgStep, &product.MinQuantity, &product.MaxQuantity, &tiers, &product.InStock)
	if err != nil {
		return nil, err
	}
	product.ID = strconv.FormatInt(id, 10)
	product.Unit = entity.Unit(unit)
	if tiers != "" {
		if err := json.Unmarshal([]byte(tiers), &product.PriceTiers); err != nil {
			return nil, fmt.Errorf("product %d: decode price tiers: %w", id, err)
		}
	}
	product.SortTiers()
	return &product, nil
}

func encodeTiers(tiers []entity.PriceTier) (string, error) {
	if len(tiers) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(tiers)
	return string(data), err
}

// parseProductID maps ids that cannot exist in the table to ErrProductNotFound.
func parseProductID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("product %q: %w", id, entity.ErrProductNotFound)
	}
	return n, nil
}

func (r *ProductRepository) GetProducts(ctx context.Context) ([]entity.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []entity.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	return products, rows.Err()
}

func (r *ProductRepository) GetProductByID(ctx context.Context, id string) (*entity.Product, error) {
	n, err := parseProductID(id)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = ?`
	product, err := scanProduct(r.db.QueryRowContext(ctx, query, n))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, entity.ErrProductNotFound)
	}
	return product, err
}

func (r *ProductRepository) CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	tiers, err := encodeTiers(product.PriceTiers)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO products (name, category, description, price, base_price_per_kg, unit, kg_step, min_quantity, max_quantity, price_tiers, in_stock) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, product.Name, product.Category, product.Description, product.Price, product.BasePricePerKg,
		string(product.Unit), product.KgStep, product.MinQuantity, product.MaxQuantity, tiers, product.InStock)
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	product.ID = strconv.FormatInt(id, 10)
	return product, nil
}

func (r *ProductRepository) UpdateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	if _, err := r.GetProductByID(ctx, product.ID); err != nil {
		return nil, err
	}
	tiers, err := encodeTiers(product.PriceTiers)
	if err != nil {
		return nil, err
	}

	query := `UPDATE products SET name = ?, category = ?, description = ?, price = ?, base_price_per_kg = ?, unit = ?, kg_step = ?, min_quantity = ?, max_quantity = ?, price_tiers = ?, in_stock = ? WHERE id = ?`
	_, err = r.db.ExecContext(ctx, query, product.Name, product.Category, product.Description, product.Price, product.BasePricePerKg,
		string(product.Unit), product.KgStep, product.MinQuantity, product.MaxQuantity, tiers, product.InStock, product.ID)
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (r *ProductRepository) DeleteProduct(ctx context.Context, id string) error {
	n, err := parseProductID(id)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, n)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("product %s: %w", id, entity.ErrProductNotFound)
	}
	return nil
}

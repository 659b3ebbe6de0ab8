package storage

import (
	"database/sql"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Product is a catalog record created by the shop actions.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateProduct inserts a product, minting its ID.
func (s *Store) CreateProduct(product *Product) error {
	if product.ID == "" {
		product.ID = strings.ToLower(ulid.Make().String())
	}
	if product.Currency == "" {
		product.Currency = "USD"
	}
	product.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO products (id, name, price, currency, stock, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		product.ID,
		product.Name,
		product.Price,
		product.Currency,
		product.Stock,
		product.CreatedAt.Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return err
	}

	s.notify(Event{
		Type:      EventProductCreated,
		EntityID:  product.ID,
		Data:      map[string]any{"name": product.Name},
		Timestamp: time.Now(),
	})
	return nil
}

// GetProduct retrieves one product by ID.
func (s *Store) GetProduct(id string) (*Product, error) {
	query := `
		SELECT id, name, price, currency, stock, created_at
		FROM products WHERE id = ?
	`
	var product Product
	err := s.db.QueryRow(query, id).Scan(
		&product.ID,
		&product.Name,
		&product.Price,
		&product.Currency,
		&product.Stock,
		&product.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts returns the newest products first.
func (s *Store) ListProducts(limit int) ([]*Product, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, name, price, currency, stock, created_at
		FROM products ORDER BY created_at DESC, id DESC LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		var product Product
		if err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.Price,
			&product.Currency,
			&product.Stock,
			&product.CreatedAt,
		); err != nil {
			return nil, err
		}
		products = append(products, &product)
	}
	return products, rows.Err()
}

package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/crud_service/internal/app/domain/category"
	"github.com/R3E-Network/crud_service/internal/app/domain/product"
	"github.com/R3E-Network/crud_service/internal/app/storage"
	"github.com/R3E-Network/crud_service/internal/database"
)

// --- CategoryStore ----------------------------------------------------------

const selectCategory = `
	SELECT id, name, created_at, updated_at
	FROM categories`

func (s *Store) CreateCategory(ctx context.Context, c category.Category) (category.Category, bool, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	ts := now()
	c.CreatedAt = ts
	c.UpdatedAt = ts

	var (
		stored  category.Category
		created bool
	)
	err := s.pool.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO categories (id, name, created_at, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING
		`, c.ID, c.Name, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return database.Classify(ctx, "insert category", err)
		}
		if rows, _ := result.RowsAffected(); rows == 1 {
			stored, created = c, true
			return nil
		}
		return existingAfterConflict(ctx, tx, &stored, "select category", selectCategory+` WHERE id = $1`, c.ID)
	})
	if err != nil {
		return category.Category{}, false, err
	}
	return stored, created, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (category.Category, bool, error) {
	var (
		c     category.Category
		found bool
	)
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		found, err = getOne(ctx, conn, &c, "select category", selectCategory+` WHERE id = $1`, id)
		return err
	})
	if err != nil || !found {
		return category.Category{}, false, err
	}
	return c, true, nil
}

func (s *Store) ListCategories(ctx context.Context, page storage.Page) ([]category.Category, error) {
	page = page.Normalize()
	result := make([]category.Category, 0)
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		err := conn.SelectContext(ctx, &result, selectCategory+`
			ORDER BY created_at, id
			LIMIT $1 OFFSET $2
		`, page.Limit, page.Offset)
		return database.Classify(ctx, "list categories", err)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateCategory(ctx context.Context, id string, patch category.Patch) (category.Category, error) {
	var updated category.Category
	err := s.pool.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &updated, selectCategory+` WHERE id = $1 FOR UPDATE`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrNotFound
			}
			return database.Classify(ctx, "lock category", err)
		}

		patch.Apply(&updated)
		updated.UpdatedAt = now()

		_, err := tx.ExecContext(ctx, `
			UPDATE categories SET name = $2, updated_at = $3 WHERE id = $1
		`, updated.ID, updated.Name, updated.UpdatedAt)
		return database.Classify(ctx, "update category", err)
	})
	if err != nil {
		return category.Category{}, err
	}
	return updated, nil
}

// DeleteCategory fails with a products_category_id_fkey constraint error while
// products still reference the category.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return deleteByID(ctx, s.pool, "delete category", `DELETE FROM categories WHERE id = $1`, id)
}

// --- ProductStore -----------------------------------------------------------

const selectProduct = `
	SELECT id, name, price, category_id, created_at, updated_at
	FROM products`

func (s *Store) CreateProduct(ctx context.Context, p product.Product) (product.Product, bool, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	ts := now()
	p.CreatedAt = ts
	p.UpdatedAt = ts

	var (
		stored  product.Product
		created bool
	)
	err := s.pool.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, name, price, category_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, p.ID, p.Name, p.Price, p.CategoryID, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return database.Classify(ctx, "insert product", err)
		}
		if rows, _ := result.RowsAffected(); rows == 1 {
			stored, created = p, true
			return nil
		}
		return existingAfterConflict(ctx, tx, &stored, "select product", selectProduct+` WHERE id = $1`, p.ID)
	})
	if err != nil {
		return product.Product{}, false, err
	}
	return stored, created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (product.Product, bool, error) {
	var (
		p     product.Product
		found bool
	)
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		found, err = getOne(ctx, conn, &p, "select product", selectProduct+` WHERE id = $1`, id)
		return err
	})
	if err != nil || !found {
		return product.Product{}, false, err
	}
	return p, true, nil
}

func (s *Store) ListProducts(ctx context.Context, filter storage.ProductFilter, page storage.Page) ([]product.Product, error) {
	page = page.Normalize()
	result := make([]product.Product, 0)
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		if filter.CategoryID != "" {
			err = conn.SelectContext(ctx, &result, selectProduct+`
				WHERE category_id = $1
				ORDER BY created_at, id
				LIMIT $2 OFFSET $3
			`, filter.CategoryID, page.Limit, page.Offset)
		} else {
			err = conn.SelectContext(ctx, &result, selectProduct+`
				ORDER BY created_at, id
				LIMIT $1 OFFSET $2
			`, page.Limit, page.Offset)
		}
		return database.Classify(ctx, "list products", err)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, patch product.Patch) (product.Product, error) {
	var updated product.Product
	err := s.pool.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &updated, selectProduct+` WHERE id = $1 FOR UPDATE`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrNotFound
			}
			return database.Classify(ctx, "lock product", err)
		}

		patch.Apply(&updated)
		updated.UpdatedAt = now()

		_, err := tx.ExecContext(ctx, `
			UPDATE products
			SET name = $2, price = $3, category_id = $4, updated_at = $5
			WHERE id = $1
		`, updated.ID, updated.Name, updated.Price, updated.CategoryID, updated.UpdatedAt)
		return database.Classify(ctx, "update product", err)
	})
	if err != nil {
		return product.Product{}, err
	}
	return updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return deleteByID(ctx, s.pool, "delete product", `DELETE FROM products WHERE id = $1`, id)
}

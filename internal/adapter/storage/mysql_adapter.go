package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/inventory-control/internal/core/domain"
)

const mysqlErrDuplicateEntry = 1062

const stockColumns = `id, product_id, quantity, version, created_at, updated_at`

type MySQLStockRepository struct {
	db *sql.DB
}

func NewMySQLStockRepository(db *sql.DB) *MySQLStockRepository {
	return &MySQLStockRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStock(row rowScanner) (domain.ProductStock, error) {
	var (
		id, productID, version int64
		quantity               int
		createdAt, updatedAt   time.Time
	)
	if err := row.Scan(&id, &productID, &quantity, &version, &createdAt, &updatedAt); err != nil {
		return domain.ProductStock{}, err
	}
	return domain.ReconstituteProductStock(
		domain.ProductStockID(id), domain.ProductID(productID), quantity, version, createdAt, updatedAt,
	)
}

func (m *MySQLStockRepository) FindByProductID(ctx context.Context, productID domain.ProductID) (domain.ProductStock, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT `+stockColumns+`
		FROM product_stock WHERE product_id = ?`, int64(productID),
	)

	stock, err := scanStock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProductStock{}, domain.ErrStockNotFound
	}
	if err != nil {
		return domain.ProductStock{}, fmt.Errorf("query product stock: %w", err)
	}

	return stock, nil
}

func (m *MySQLStockRepository) Persist(ctx context.Context, stock domain.ProductStock) (domain.ProductStockID, error) {
	result, err := m.db.ExecContext(ctx, `
		INSERT INTO product_stock (product_id, quantity, version, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)`,
		int64(stock.ProductID()), stock.Quantity(), stock.CreatedAt(), stock.UpdatedAt(),
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return 0, domain.ErrStockAlreadyExists
		}
		return 0, fmt.Errorf("insert product stock: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted id: %w", err)
	}

	return domain.ProductStockID(id), nil
}

// Update writes quantity and bumps the version only while the stored version
// still equals the snapshot's.
func (m *MySQLStockRepository) Update(ctx context.Context, stock domain.ProductStock) (domain.ProductStock, error) {
	if stock.IsNew() {
		return domain.ProductStock{}, domain.ErrInvalidStockID
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE product_stock
		SET quantity = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		stock.Quantity(), stock.UpdatedAt(), int64(stock.ID()), stock.Version(),
	)
	if err != nil {
		return domain.ProductStock{}, fmt.Errorf("update product stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.ProductStock{}, fmt.Errorf("read affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ProductStock{}, domain.ErrVersionConflict
	}

	return stock.Persisted(stock.ID(), stock.Version()+1), nil
}

func (m *MySQLStockRepository) Scan(ctx context.Context, afterID domain.ProductStockID, limit int) ([]domain.ProductStock, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+stockColumns+`
		FROM product_stock WHERE id > ? ORDER BY id LIMIT ?`, int64(afterID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("scan product stock: %w", err)
	}
	defer rows.Close()

	var stocks []domain.ProductStock
	for rows.Next() {
		stock, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product stock row: %w", err)
		}
		stocks = append(stocks, stock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product stock: %w", err)
	}

	return stocks, nil
}

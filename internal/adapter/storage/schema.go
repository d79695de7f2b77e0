package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// productStockModel mirrors the product_stock table read and written by
// MySQLStockRepository. It is only used for schema migration.
type productStockModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	ProductID int64     `gorm:"not null;uniqueIndex:uk_product_stock_product_id"`
	Quantity  int32     `gorm:"not null;check:chk_product_stock_quantity,quantity >= 0"`
	Version   int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"type:datetime(6);not null"`
	UpdatedAt time.Time `gorm:"type:datetime(6);not null"`
}

func (productStockModel) TableName() string {
	return "product_stock"
}

// Migrate creates or updates the product_stock table on an open connection.
func Migrate(ctx context.Context, db *sql.DB) error {
	gdb, err := gorm.Open(gormmysql.New(gormmysql.Config{Conn: db}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("open gorm: %w", err)
	}

	if err := gdb.WithContext(ctx).AutoMigrate(&productStockModel{}); err != nil {
		return fmt.Errorf("migrate product_stock: %w", err)
	}
	return nil
}

package testutil

import (
	"fmt"
	"strings"
	"testing"

	"storefront/internal/domain/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDBはテストごとに独立したインメモリsqliteを作る。
// 接続は1本だけなので、Txの中で外側のdbを使うと止まる。
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(model.All()...))

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

func SeedProduct(t *testing.T, db *gorm.DB, name string, price string, stock int64) model.Product {
	t.Helper()

	p := model.Product{
		Name:     name,
		Slug:     strings.ToLower(strings.ReplaceAll(name, " ", "-")) + "-" + uuid.NewString()[:8],
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func SeedPromo(t *testing.T, db *gorm.DB, promo model.PromoCode) model.PromoCode {
	t.Helper()

	if promo.Code == "" {
		promo.Code = "PROMO" + strings.ToUpper(uuid.NewString()[:6])
	}
	promo.Code = model.NormalizePromoCode(promo.Code)
	active := promo.IsActive
	require.NoError(t, db.Create(&promo).Error)
	// default:true のせいで false が入らないので明示的に書く
	require.NoError(t, db.Model(&model.PromoCode{}).Where("id = ?", promo.ID).Update("is_active", active).Error)
	promo.IsActive = active
	return promo
}

// ReloadStockは現在の在庫をDBから読む
func ReloadStock(t *testing.T, db *gorm.DB, productID int64) int64 {
	t.Helper()

	var p model.Product
	require.NoError(t, db.Select("id", "stock").Where("id = ?", productID).First(&p).Error)
	return p.Stock
}

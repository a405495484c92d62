package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailySales — выручка за день.
type DailySales struct {
	Date    string
	Revenue decimal.Decimal
	Orders  int
}

// OrderStats — агрегаты по заказам для панели администратора.
type OrderStats struct {
	TotalOrders   int
	PendingOrders int
	Revenue       decimal.Decimal
	ByStatus      map[OrderStatus]int
	SalesByDate   []DailySales
}

// DashboardStats — сводка для панели администратора.
type DashboardStats struct {
	OrderStats
	TotalUsers    int
	TotalProducts int
	Since         time.Time
}

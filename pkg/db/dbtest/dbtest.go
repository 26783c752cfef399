// Package dbtest opens throwaway sqlite databases carrying the ledger schema
// for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
)

var dbSeq atomic.Int64

var schema = []string{
	`CREATE TABLE packages (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		ram_mb INTEGER NOT NULL,
		cpu_limit INTEGER NOT NULL,
		disk_mb INTEGER NOT NULL,
		backup_slots INTEGER NOT NULL DEFAULT 0,
		database_limit INTEGER NOT NULL DEFAULT 0,
		price NUMERIC NOT NULL,
		billing_cycle TEXT NOT NULL DEFAULT 'monthly',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		package_id TEXT NOT NULL,
		server_name TEXT NOT NULL,
		total_price NUMERIC NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		provision_attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE invoices (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		invoice_number TEXT NOT NULL UNIQUE,
		amount NUMERIC NOT NULL,
		due_date DATETIME NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		paid_at DATETIME,
		payment_method TEXT,
		payment_reference TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE payment_transactions (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL,
		transaction_id TEXT NOT NULL UNIQUE,
		payment_gateway TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_type TEXT,
		raw_response BLOB,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE servers (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		order_id TEXT NOT NULL UNIQUE,
		package_id TEXT NOT NULL,
		backend_server_id INTEGER,
		server_identifier TEXT,
		server_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'provisioning',
		ip_address TEXT,
		port INTEGER,
		ram_mb INTEGER NOT NULL,
		cpu_limit INTEGER NOT NULL,
		disk_mb INTEGER NOT NULL,
		expires_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// Open returns an isolated in-memory database with the ledger tables created.
// The pool is pinned to one connection so transactions never contend.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// SeedUser inserts a user with the given email.
func SeedUser(t *testing.T, conn *gorm.DB, email, fullName string) models.User {
	t.Helper()
	user := models.User{
		ID:       uuid.New(),
		Email:    email,
		FullName: fullName,
		Role:     enums.UserRoleUser,
	}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// SeedPackage inserts an active monthly package with the given price.
func SeedPackage(t *testing.T, conn *gorm.DB, price string) models.Package {
	t.Helper()
	pkg := models.Package{
		ID:           uuid.New(),
		Name:         "Starter",
		RAMMB:        2048,
		CPULimit:     100,
		DiskMB:       10240,
		BackupSlots:  1,
		Price:        decimal.RequireFromString(price),
		BillingCycle: enums.BillingCycleMonthly,
		IsActive:     true,
	}
	if err := conn.Create(&pkg).Error; err != nil {
		t.Fatalf("seed package: %v", err)
	}
	return pkg
}

// SeedOrderWithInvoice inserts an order and its invoice in the given states.
func SeedOrderWithInvoice(t *testing.T, conn *gorm.DB, user models.User, pkg models.Package, orderStatus enums.OrderStatus, invoiceStatus enums.InvoiceStatus) (models.Order, models.Invoice) {
	t.Helper()
	order := models.Order{
		ID:         uuid.New(),
		UserID:     user.ID,
		PackageID:  pkg.ID,
		ServerName: "survival",
		TotalPrice: pkg.Price,
		Status:     orderStatus,
	}
	if err := conn.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	invoice := models.Invoice{
		ID:            uuid.New(),
		OrderID:       order.ID,
		UserID:        user.ID,
		InvoiceNumber: "INV-" + strings.ToUpper(uuid.NewString()[:8]),
		Amount:        order.TotalPrice,
		DueDate:       time.Now().UTC().Add(72 * time.Hour),
		Status:        invoiceStatus,
	}
	if err := conn.Create(&invoice).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return order, invoice
}

package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSettlementsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_settlements.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS settlements",
		"CHECK (period_month BETWEEN 1 AND 12)",
		"ON settlements(seller_store_id, period_year, period_month)",
		"WHERE status <> 'cancelled'",
		"REFERENCES settlements(id) ON DELETE CASCADE",
	}
	for _, check := range checks {
		if !strings.Contains(content, check) {
			t.Fatalf("settlements migration missing %q", check)
		}
	}
}

func TestCommissionRecordsMigrationEnforcesIdempotencyKey(t *testing.T) {
	content := readMigration(t, "*_create_commission_records.sql")

	if !strings.Contains(content, "UNIQUE (order_id, seller_store_id)") {
		t.Fatalf("commission records migration missing order/seller unique constraint")
	}
}

func TestInvoicesMigrationEnforcesGaplessNumbering(t *testing.T) {
	content := readMigration(t, "*_create_invoices.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS invoice_sequences",
		"invoice_number TEXT NOT NULL UNIQUE",
		"UNIQUE (year, sequence)",
	}
	for _, check := range checks {
		if !strings.Contains(content, check) {
			t.Fatalf("invoices migration missing %q", check)
		}
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration found for %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

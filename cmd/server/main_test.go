package main

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/sweetshop/internal/config"
)

func TestOpenStore(t *testing.T) {
	tests := []struct {
		name      string
		driver    string
		seed      bool
		wantCount int
	}{
		{"memory seeded", config.StoreDriverMemory, true, 3},
		{"memory empty", config.StoreDriverMemory, false, 0},
		{"sqlite seeded", config.StoreDriverSQLite, true, 3},
		{"sqlite empty", config.StoreDriverSQLite, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			cfg := config.Default()
			cfg.StoreDriver = tt.driver
			cfg.SQLiteDSN = filepath.Join(t.TempDir(), "sweets.db")
			cfg.SeedData = tt.seed

			// Act
			s, err := openStore(context.Background(), cfg, zap.NewNop())

			// Assert
			if err != nil {
				t.Fatalf("openStore() error = %v", err)
			}
			defer s.Close()

			sweets, err := s.List(context.Background())
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(sweets) != tt.wantCount {
				t.Errorf("List() returned %d sweets, want %d", len(sweets), tt.wantCount)
			}
		})
	}
}

func TestOpenStore_ReseedKeepsExisting(t *testing.T) {
	// Arrange
	cfg := config.Default()
	cfg.StoreDriver = config.StoreDriverSQLite
	cfg.SQLiteDSN = filepath.Join(t.TempDir(), "sweets.db")

	first, err := openStore(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	if _, err := first.Purchase(context.Background(), 1001, 5); err != nil {
		t.Fatalf("Purchase() error = %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Act
	second, err := openStore(context.Background(), cfg, zap.NewNop())

	// Assert
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	defer second.Close()

	sweet, err := second.Get(context.Background(), 1001)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if sweet.Quantity != 15 {
		t.Errorf("Quantity = %d, want 15 after reopening", sweet.Quantity)
	}
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	// Arrange
	cfg := config.Default()
	cfg.StoreDriver = "postgres"

	// Act
	s, err := openStore(context.Background(), cfg, zap.NewNop())

	// Assert
	if err == nil {
		t.Error("openStore() expected error for unknown driver")
	}
	if s != nil {
		t.Error("openStore() should return nil store on error")
	}
}

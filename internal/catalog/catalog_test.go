package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const sampleCatalog = `
currency: EUR
listingTypes:
  - type: dog
    products:
      - durationInDays: 30
        price: 1000
      - durationInDays: 60
        price: 1800
ads:
  - id: 5
    name: Spotlight
    products:
      - durationInDays: 7
        price: 300
`

func TestParse_Success(t *testing.T) {
	t.Parallel()

	c, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if c.Currency() != "eur" {
		t.Fatalf("expected lower-cased currency, got %q", c.Currency())
	}

	lt, err := c.ListingType(context.Background(), "dog")
	if err != nil {
		t.Fatalf("listing type lookup failed: %v", err)
	}
	product, err := lt.FindProduct(60)
	if err != nil {
		t.Fatalf("find product failed: %v", err)
	}
	if product.Price != 1800 {
		t.Fatalf("expected price 1800, got %d", product.Price)
	}

	ad, err := c.Ad(context.Background(), 5)
	if err != nil {
		t.Fatalf("ad lookup failed: %v", err)
	}
	if ad.Name != "Spotlight" {
		t.Fatalf("unexpected ad: %+v", ad)
	}
}

func TestParse_Lookups(t *testing.T) {
	t.Parallel()

	c, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if _, err := c.ListingType(context.Background(), "cat"); !errors.Is(err, domain.ErrListingTypeNotFound) {
		t.Fatalf("expected ErrListingTypeNotFound, got %v", err)
	}
	if _, err := c.Ad(context.Background(), 99); !errors.Is(err, domain.ErrAdNotFound) {
		t.Fatalf("expected ErrAdNotFound, got %v", err)
	}
}

func TestParse_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "duplicate duration",
			yaml:    "listingTypes:\n  - type: dog\n    products:\n      - {durationInDays: 30, price: 1}\n      - {durationInDays: 30, price: 2}\n",
			wantErr: "duplicate product",
		},
		{
			name:    "negative price",
			yaml:    "listingTypes:\n  - type: dog\n    products:\n      - {durationInDays: 30, price: -1}\n",
			wantErr: "non-negative",
		},
		{
			name:    "zero duration",
			yaml:    "ads:\n  - id: 1\n    products:\n      - {durationInDays: 0, price: 1}\n",
			wantErr: "greater than zero",
		},
		{
			name:    "duplicate ad",
			yaml:    "ads:\n  - id: 1\n    products: [{durationInDays: 1, price: 1}]\n  - id: 1\n    products: [{durationInDays: 2, price: 1}]\n",
			wantErr: "duplicate ad id",
		},
		{
			name:    "empty products",
			yaml:    "listingTypes:\n  - type: dog\n",
			wantErr: "no products",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoad_DefaultCurrencyAndMissingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("listingTypes:\n  - type: dog\n    products: [{durationInDays: 30, price: 10}]\n"), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if c.Currency() != DefaultCurrency {
		t.Fatalf("expected default currency, got %q", c.Currency())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_RepositoryCatalog(t *testing.T) {
	t.Parallel()

	c, err := Load(filepath.Join("..", "..", "configs", "catalog.yaml"))
	if err != nil {
		t.Fatalf("load shipped catalog: %v", err)
	}
	if _, err := c.ListingType(context.Background(), "dog"); err != nil {
		t.Fatalf("expected dog listing type: %v", err)
	}
}

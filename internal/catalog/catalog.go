// Package catalog хранит таблицы цен типов объявлений и рекламных размещений.
package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// DefaultCurrency используется, если в файле каталога валюта не указана.
const DefaultCurrency = "usd"

// document описывает формат YAML-файла каталога.
type document struct {
	Currency     string               `yaml:"currency"`
	ListingTypes []domain.ListingType `yaml:"listingTypes"`
	Ads          []domain.Ad          `yaml:"ads"`
}

// Catalog хранит неизменяемый каталог, загруженный при старте.
type Catalog struct {
	currency     string
	listingTypes map[string]domain.ListingType
	ads          map[int64]domain.Ad
}

// Load читает и валидирует каталог из YAML-файла.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse разбирает каталог из YAML.
func Parse(raw []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(doc.Currency, doc.ListingTypes, doc.Ads)
}

// New собирает каталог из готовых таблиц.
func New(currency string, listingTypes []domain.ListingType, ads []domain.Ad) (*Catalog, error) {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}

	c := &Catalog{
		currency:     currency,
		listingTypes: make(map[string]domain.ListingType, len(listingTypes)),
		ads:          make(map[int64]domain.Ad, len(ads)),
	}

	for _, lt := range listingTypes {
		lt.Type = strings.TrimSpace(lt.Type)
		if lt.Type == "" {
			return nil, fmt.Errorf("catalog: listing type without name")
		}
		if _, dup := c.listingTypes[lt.Type]; dup {
			return nil, fmt.Errorf("catalog: duplicate listing type %q", lt.Type)
		}
		if err := validateProducts(lt.Products); err != nil {
			return nil, fmt.Errorf("catalog: listing type %q: %w", lt.Type, err)
		}
		c.listingTypes[lt.Type] = lt
	}

	for _, ad := range ads {
		if ad.ID <= 0 {
			return nil, fmt.Errorf("catalog: ad %q must have positive id", ad.Name)
		}
		if _, dup := c.ads[ad.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate ad id %d", ad.ID)
		}
		if err := validateProducts(ad.Products); err != nil {
			return nil, fmt.Errorf("catalog: ad %d: %w", ad.ID, err)
		}
		c.ads[ad.ID] = ad
	}

	return c, nil
}

func validateProducts(products []domain.Product) error {
	if len(products) == 0 {
		return fmt.Errorf("no products")
	}
	seen := make(map[int]struct{}, len(products))
	for _, p := range products {
		if p.DurationInDays <= 0 {
			return domain.ErrDurationInvalid
		}
		if p.Price < 0 {
			return domain.ErrPriceNegative
		}
		if _, dup := seen[p.DurationInDays]; dup {
			return fmt.Errorf("duplicate product for %d days", p.DurationInDays)
		}
		seen[p.DurationInDays] = struct{}{}
	}
	return nil
}

// ListingType возвращает таблицу продуктов типа объявления.
func (c *Catalog) ListingType(_ context.Context, name string) (domain.ListingType, error) {
	lt, ok := c.listingTypes[name]
	if !ok {
		return domain.ListingType{}, fmt.Errorf("%w: %q", domain.ErrListingTypeNotFound, name)
	}
	return lt, nil
}

// Ad возвращает рекламное размещение по идентификатору.
func (c *Catalog) Ad(_ context.Context, id int64) (domain.Ad, error) {
	ad, ok := c.ads[id]
	if !ok {
		return domain.Ad{}, fmt.Errorf("%w: %d", domain.ErrAdNotFound, id)
	}
	return ad, nil
}

// Currency возвращает валюту цен каталога (ISO 4217, нижний регистр).
func (c *Catalog) Currency() string {
	return c.currency
}

var _ domain.Catalog = (*Catalog)(nil)

package domain

import "context"

// Product — строка таблицы цен: стоимость фиксированного срока размещения.
type Product struct {
	Price          int64    `yaml:"price"`
	DurationInDays int      `yaml:"durationInDays"`
	Title          string   `yaml:"title,omitempty"`
	Description    string   `yaml:"description,omitempty"`
	ImageURLs      []string `yaml:"imageUrls,omitempty"`
}

// ListingType задаёт категорию объявлений со своей таблицей продуктов.
type ListingType struct {
	Type     string    `yaml:"type"`
	Products []Product `yaml:"products"`
}

// FindProduct ищет продукт с точным совпадением длительности.
func (t ListingType) FindProduct(durationInDays int) (Product, error) {
	if durationInDays <= 0 {
		return Product{}, ErrDurationInvalid
	}
	for _, p := range t.Products {
		if p.DurationInDays == durationInDays {
			return p, nil
		}
	}
	return Product{}, ErrUnsupportedDuration
}

// Ad описывает рекламное размещение, которое можно докупить к объявлению.
type Ad struct {
	ID       int64     `yaml:"id"`
	Name     string    `yaml:"name"`
	Products []Product `yaml:"products"`
}

// FindProduct ищет продукт размещения с точным совпадением длительности.
func (a Ad) FindProduct(durationInDays int) (Product, error) {
	if durationInDays <= 0 {
		return Product{}, ErrDurationInvalid
	}
	for _, p := range a.Products {
		if p.DurationInDays == durationInDays {
			return p, nil
		}
	}
	return Product{}, ErrUnsupportedAdDuration
}

// Catalog отдаёт таблицы продуктов. Источник данных внешний по отношению к ядру.
type Catalog interface {
	ListingType(ctx context.Context, listingType string) (ListingType, error)
	Ad(ctx context.Context, id int64) (Ad, error)
	Currency() string
}

package models

import (
	"strconv"
	"strings"
	"time"
)

const DefaultCurrency = "USD"

// Currencies accepted for service prices.
var Currencies = []string{"USD", "EUR", "GBP", "CAD", "AUD"}

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"CAD": "CA$",
	"AUD": "A$",
}

// Service is a bookable or informational offering.
type Service struct {
	ID              string     `json:"id"`
	Collection      string     `json:"collection"`
	Title           string     `json:"title"`
	Details         string     `json:"details"`
	Icon            string     `json:"icon,omitempty"`
	ImagePaths      []string   `json:"image_paths"`
	PriceCents      *int64     `json:"price_cents,omitempty"`
	Currency        string     `json:"currency"`
	IsBookable      bool       `json:"is_bookable"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// ImagePath returns the single image path or "".
func (s *Service) ImagePath() string {
	if len(s.ImagePaths) == 0 {
		return ""
	}
	return s.ImagePaths[0]
}

// ServiceFilter narrows a service listing. Zero values mean no constraint
// except Limit, which the repository defaults.
type ServiceFilter struct {
	Bookable *bool
	MinPrice *int64
	MaxPrice *int64
	Limit    int
	Offset   int
}

const (
	DefaultServiceLimit = 50
	MaxServiceLimit     = 100
)

// EffectiveLimit clamps Limit to MaxServiceLimit. A non-positive Limit
// means DefaultServiceLimit.
func (f ServiceFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultServiceLimit
	}
	return min(f.Limit, MaxServiceLimit)
}

// Price is the rendered price of a service.
type Price struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Formatted string `json:"formatted"`
}

// ServiceView is the public JSON shape of a service.
type ServiceView struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Details         string     `json:"details"`
	Icon            *string    `json:"icon"`
	ImageURL        *string    `json:"imageUrl"`
	ImagePath       *string    `json:"imagePath"`
	Price           *Price     `json:"price"`
	IsBookable      bool       `json:"isBookable"`
	DurationMinutes *int       `json:"durationMinutes"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       *time.Time `json:"updatedAt"`
}

// NewServiceView renders s, resolving its image with resolve.
func NewServiceView(s *Service, resolve func(string) string) ServiceView {
	view := ServiceView{
		ID:              s.ID,
		Title:           s.Title,
		Details:         s.Details,
		IsBookable:      s.IsBookable,
		DurationMinutes: s.DurationMinutes,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if s.Icon != "" {
		icon := s.Icon
		view.Icon = &icon
	}
	if p := s.ImagePath(); p != "" {
		u := resolve(p)
		view.ImageURL = &u
		view.ImagePath = &p
	}
	if s.PriceCents != nil && *s.PriceCents > 0 {
		currency := NormalizeCurrency(s.Currency)
		view.Price = &Price{
			Amount:    *s.PriceCents,
			Currency:  currency,
			Formatted: FormatPrice(*s.PriceCents, currency),
		}
	}
	return view
}

// NormalizeCurrency upper-cases c and falls back to USD for unknown codes.
func NormalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if _, ok := currencySymbols[c]; ok {
		return c
	}
	return DefaultCurrency
}

// FormatPrice renders cents in en-US style, e.g. 123456 USD -> "$1,234.56".
func FormatPrice(cents int64, currency string) string {
	symbol := currencySymbols[NormalizeCurrency(currency)]

	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}

	whole := strconv.FormatInt(cents/100, 10)
	frac := cents % 100

	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	return sign + symbol + grouped.String() + "." + twoDigits(frac)
}

func twoDigits(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}

package invoicing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

// StockPolicy decides what happens when a row requests more than is available.
type StockPolicy string

const (
	// StockBlock makes an excess a validation error that blocks commit.
	StockBlock StockPolicy = "block"
	// StockWarn only reports the excess as an advisory warning.
	StockWarn StockPolicy = "warn"
	// StockOff disables stock checks entirely.
	StockOff StockPolicy = "off"
)

// ParseStockPolicy converts a configuration value into a StockPolicy.
func ParseStockPolicy(v string) (StockPolicy, error) {
	switch p := StockPolicy(v); p {
	case StockBlock, StockWarn, StockOff:
		return p, nil
	}
	return "", fmt.Errorf("invoicing: unknown stock policy %q", v)
}

// Config parametrises an engine for one entry screen.
type Config struct {
	Kind              Kind
	StockPolicy       StockPolicy
	LowStockThreshold decimal.Decimal
	DismissDelay      time.Duration
	ErrorNoticeDelay  time.Duration
	Currency          string
	MainUnitLabel     string
	SubUnitLabel      string
	Language          language.Tag
}

// SalesConfig returns the defaults of the sales screen.
func SalesConfig() Config {
	return Config{
		Kind:              KindSales,
		StockPolicy:       StockBlock,
		LowStockThreshold: decimal.NewFromInt(5),
		DismissDelay:      200 * time.Millisecond,
		ErrorNoticeDelay:  500 * time.Millisecond,
		Currency:          "EGP",
		MainUnitLabel:     "carton",
		SubUnitLabel:      "piece",
		Language:          language.English,
	}
}

// PurchaseConfig returns the defaults of the purchase screen.
func PurchaseConfig() Config {
	cfg := SalesConfig()
	cfg.Kind = KindPurchase
	cfg.StockPolicy = StockOff
	return cfg
}

// ConfigFor returns the default configuration for kind.
func ConfigFor(kind Kind) Config {
	if kind == KindPurchase {
		return PurchaseConfig()
	}
	return SalesConfig()
}

func (c Config) partyKey() string {
	if c.Kind == KindPurchase {
		return "supplier"
	}
	return "customer"
}

func (c Config) rules() Rules {
	return Rules{
		PartyKey:          c.partyKey(),
		StockPolicy:       c.StockPolicy,
		LowStockThreshold: c.LowStockThreshold,
	}
}

package invoicing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04"
	dateTimeLayout = dateLayout + " " + timeLayout
)

// Rules carries the configuration-dependent part of validation.
type Rules struct {
	PartyKey          string
	StockPolicy       StockPolicy
	LowStockThreshold decimal.Decimal
}

// FieldError is one entry of the validation mapping.
type FieldError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// ValidationErrors is the ordered result of a validation pass. Empty means valid.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, fe := range v {
		msgs = append(msgs, fe.Key+": "+fe.Message)
	}
	return strings.Join(msgs, "; ")
}

// Map returns the key to message mapping.
func (v ValidationErrors) Map() map[string]string {
	out := make(map[string]string, len(v))
	for _, fe := range v {
		out[fe.Key] = fe.Message
	}
	return out
}

// Has reports whether key is present.
func (v ValidationErrors) Has(key string) bool {
	for _, fe := range v {
		if fe.Key == key {
			return true
		}
	}
	return false
}

// First returns the first error in validation order.
func (v ValidationErrors) First() (FieldError, bool) {
	if len(v) == 0 {
		return FieldError{}, false
	}
	return v[0], true
}

func (v *ValidationErrors) add(key, msg string) {
	*v = append(*v, FieldError{Key: key, Message: msg})
}

func rowKey(field string, i int) string {
	return fmt.Sprintf("%s_%d", field, i)
}

// LineTotal is mainQuantity*mainPrice + subQuantity*subPrice.
func LineTotal(item LineItem) decimal.Decimal {
	return item.MainQuantity.Mul(item.MainPrice).Add(item.SubQuantity.Mul(item.SubPrice))
}

// GrandTotal sums LineTotal over items.
func GrandTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(LineTotal(item))
	}
	return total
}

// RequestedQuantity is the naive sum of both units, compared against main-unit stock.
func RequestedQuantity(item LineItem) decimal.Decimal {
	return item.MainQuantity.Add(item.SubQuantity)
}

// AvailableQuantity returns the known stock of a product, zero when it is not in the list.
func AvailableQuantity(products []Product, productID int64) decimal.Decimal {
	for _, p := range products {
		if p.ID == productID {
			return p.MainQuantity
		}
	}
	return decimal.Zero
}

// StockLevel classifies a stock check.
type StockLevel string

const (
	StockOK       StockLevel = "ok"
	StockLow      StockLevel = "low"
	StockExceeded StockLevel = "exceeded"
)

// StockWarning is the advisory outcome of comparing a row to available stock.
type StockWarning struct {
	Level     StockLevel      `json:"level"`
	Requested decimal.Decimal `json:"requested"`
	Available decimal.Decimal `json:"available"`
	Message   string          `json:"message,omitempty"`
}

// CheckStock compares the requested amount of item against the catalog stock.
// Rows without a product never warn.
func CheckStock(item LineItem, products []Product, lowThreshold decimal.Decimal) StockWarning {
	if !item.HasProduct() {
		return StockWarning{Level: StockOK}
	}
	requested := RequestedQuantity(item)
	available := AvailableQuantity(products, *item.ProductID)
	w := StockWarning{Level: StockOK, Requested: requested, Available: available}
	if requested.GreaterThan(available) {
		w.Level = StockExceeded
		w.Message = fmt.Sprintf("requested (%s) exceeds available (%s)", requested, available)
		return w
	}
	remaining := available.Sub(requested)
	if remaining.IsPositive() && remaining.LessThan(lowThreshold) {
		w.Level = StockLow
		w.Message = fmt.Sprintf("low remaining stock: %s", remaining)
	}
	return w
}

// IssuedAt combines the header date and time. An empty time means midnight.
func IssuedAt(h Header, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if strings.TrimSpace(h.Date) == "" {
		return time.Time{}, ErrInvalidDate
	}
	clock := strings.TrimSpace(h.Time)
	if clock == "" {
		clock = "00:00"
	}
	at, err := time.ParseInLocation(dateTimeLayout, strings.TrimSpace(h.Date)+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	return at, nil
}

// ValidateAll runs the full validation pass. It is a pure function of its inputs.
func ValidateAll(header Header, items []LineItem, products []Product, rules Rules) ValidationErrors {
	var errs ValidationErrors

	partyKey := rules.PartyKey
	if partyKey == "" {
		partyKey = "customer"
	}
	if header.CounterpartyID == nil {
		errs.add(partyKey, fmt.Sprintf("a %s must be selected", partyKey))
	}

	if strings.TrimSpace(header.Date) == "" {
		errs.add("date", "invoice date is required")
	} else if _, err := IssuedAt(header, time.UTC); err != nil {
		errs.add("date", "invoice date or time is not valid")
	}

	for i, item := range items {
		if !item.HasProduct() {
			errs.add(rowKey("product", i), "a product must be selected")
		}

		switch {
		case item.MainQuantity.IsNegative():
			errs.add(rowKey("mainQuantity", i), "main quantity cannot be negative")
		case item.MainQuantity.IsZero() && item.SubQuantity.IsZero():
			errs.add(rowKey("mainQuantity", i), "need a quantity in at least one unit")
		}
		if item.SubQuantity.IsNegative() {
			errs.add(rowKey("subQuantity", i), "sub quantity cannot be negative")
		}

		switch {
		case item.MainPrice.IsNegative():
			errs.add(rowKey("mainPrice", i), "main price cannot be negative")
		case item.MainPrice.IsZero() && item.MainQuantity.IsPositive():
			errs.add(rowKey("mainPrice", i), "need a price for the unit in use")
		}
		switch {
		case item.SubPrice.IsNegative():
			errs.add(rowKey("subPrice", i), "sub price cannot be negative")
		case item.SubPrice.IsZero() && item.SubQuantity.IsPositive():
			errs.add(rowKey("subPrice", i), "need a price for the unit in use")
		}

		if rules.StockPolicy == StockBlock {
			if w := CheckStock(item, products, rules.LowStockThreshold); w.Level == StockExceeded {
				errs.add(rowKey("stock", i), w.Message)
			}
		}
	}

	if !GrandTotal(items).IsPositive() {
		errs.add("total", "grand total must be greater than zero")
	}
	return errs
}

// Flatten converts a validated line item to its persistence shape.
func Flatten(item LineItem) FlatLine {
	price := item.SubPrice
	if item.MainQuantity.IsPositive() {
		price = item.MainPrice
	}
	fl := FlatLine{
		ProductName: item.ProductName,
		Quantity:    RequestedQuantity(item),
		Price:       price,
		LineTotal:   LineTotal(item),
	}
	if item.ProductID != nil {
		fl.ProductID = *item.ProductID
	}
	return fl
}

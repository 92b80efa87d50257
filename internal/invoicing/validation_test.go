package invoicing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func productID(id int64) *int64 { return &id }

func validHeader() Header {
	return Header{CounterpartyID: productID(1), CounterpartyName: "Ahmed Stores", Date: "2026-10-18", Time: "09:30", PaymentType: PaymentCash}
}

func TestLineTotalsScenarioA(t *testing.T) {
	item := LineItem{ProductID: productID(3), MainQuantity: dec("2"), MainPrice: dec("10"), SubQuantity: dec("0"), SubPrice: dec("0")}
	requireDecimal(t, "20", LineTotal(item))
	requireDecimal(t, "20", GrandTotal([]LineItem{item}))

	errs := ValidateAll(Header{Date: "2026-10-18"}, []LineItem{item}, testReference().Products, SalesConfig().rules())
	require.Len(t, errs, 1)
	require.Equal(t, "customer", errs[0].Key)
}

func TestGrandTotalIsSumOfLineTotals(t *testing.T) {
	items := []LineItem{
		{MainQuantity: dec("2"), MainPrice: dec("10"), SubQuantity: dec("3"), SubPrice: dec("1.25")},
		{MainQuantity: dec("0"), MainPrice: dec("0"), SubQuantity: dec("12"), SubPrice: dec("0.5")},
		{MainQuantity: dec("1.5"), MainPrice: dec("4"), SubQuantity: dec("0"), SubPrice: dec("0")},
	}
	sum := decimal.Zero
	for _, item := range items {
		lt := LineTotal(item)
		require.False(t, lt.IsNegative())
		sum = sum.Add(lt)
	}
	requireDecimal(t, "35.75", sum)
	require.True(t, GrandTotal(items).Equal(sum))

	doubled := items[0]
	doubled.MainQuantity = doubled.MainQuantity.Mul(dec("2"))
	doubled.SubQuantity = doubled.SubQuantity.Mul(dec("2"))
	require.True(t, LineTotal(doubled).Equal(LineTotal(items[0]).Mul(dec("2"))))
}

func TestValidateAllRules(t *testing.T) {
	products := testReference().Products
	rules := SalesConfig().rules()

	cases := []struct {
		name    string
		header  Header
		item    LineItem
		key     string
		message string
	}{
		{"missing customer", Header{Date: "2026-10-18"}, LineItem{ProductID: productID(3), MainQuantity: dec("1"), MainPrice: dec("4")}, "customer", "a customer must be selected"},
		{"missing date", Header{CounterpartyID: productID(1)}, LineItem{ProductID: productID(3), MainQuantity: dec("1"), MainPrice: dec("4")}, "date", "invoice date is required"},
		{"bad date", Header{CounterpartyID: productID(1), Date: "18/10/2026"}, LineItem{ProductID: productID(3), MainQuantity: dec("1"), MainPrice: dec("4")}, "date", "invoice date or time is not valid"},
		{"missing product", validHeader(), LineItem{MainQuantity: dec("1"), MainPrice: dec("4")}, "product_0", "a product must be selected"},
		{"negative main quantity", validHeader(), LineItem{ProductID: productID(3), MainQuantity: dec("-1"), SubQuantity: dec("2"), SubPrice: dec("1")}, "mainQuantity_0", "main quantity cannot be negative"},
		{"no quantity", validHeader(), LineItem{ProductID: productID(3)}, "mainQuantity_0", "need a quantity in at least one unit"},
		{"negative sub quantity", validHeader(), LineItem{ProductID: productID(3), MainQuantity: dec("1"), MainPrice: dec("4"), SubQuantity: dec("-1")}, "subQuantity_0", "sub quantity cannot be negative"},
		{"negative main price", validHeader(), LineItem{ProductID: productID(3), MainQuantity: dec("1"), MainPrice: dec("-4")}, "mainPrice_0", "main price cannot be negative"},
		{"main price missing", validHeader(), LineItem{ProductID: productID(3), MainQuantity: dec("1")}, "mainPrice_0", "need a price for the unit in use"},
		{"sub price missing", validHeader(), LineItem{ProductID: productID(3), SubQuantity: dec("4")}, "subPrice_0", "need a price for the unit in use"},
		{"stock exceeded", validHeader(), LineItem{ProductID: productID(1), MainQuantity: dec("5"), MainPrice: dec("10")}, "stock_0", "requested (5) exceeds available (3)"},
		{"zero total", validHeader(), LineItem{ProductID: productID(3), MainQuantity: dec("1"), MainPrice: dec("0"), SubQuantity: dec("0")}, "total", "grand total must be greater than zero"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs := ValidateAll(tc.header, []LineItem{tc.item}, products, rules)
			require.True(t, errs.Has(tc.key), "errors: %v", errs)
			require.Equal(t, tc.message, errs.Map()[tc.key])
		})
	}
}

func TestValidateAllEmptyWhenComplete(t *testing.T) {
	items := []LineItem{
		{ProductID: productID(2), MainQuantity: dec("1"), MainPrice: dec("50"), SubQuantity: dec("2"), SubPrice: dec("5")},
		{ProductID: productID(3), SubQuantity: dec("4"), SubPrice: dec("0.5")},
	}
	errs := ValidateAll(validHeader(), items, testReference().Products, SalesConfig().rules())
	require.Empty(t, errs)
}

func TestValidateAllIsIdempotent(t *testing.T) {
	items := []LineItem{
		{ProductID: productID(1), MainQuantity: dec("9"), MainPrice: dec("0")},
		{SubQuantity: dec("-2")},
	}
	products := testReference().Products
	first := ValidateAll(Header{}, items, products, SalesConfig().rules())
	second := ValidateAll(Header{}, items, products, SalesConfig().rules())
	require.NotEmpty(t, first)
	require.Equal(t, first, second)
}

func TestValidateAllPartyKeyFollowsKind(t *testing.T) {
	errs := ValidateAll(Header{Date: "2026-10-18"}, []LineItem{{ProductID: productID(3), MainQuantity: dec("1"), MainPrice: dec("4")}}, nil, PurchaseConfig().rules())
	require.Equal(t, "a supplier must be selected", errs.Map()["supplier"])
	require.False(t, errs.Has("customer"))
}

func TestStockPolicyDecidesBlocking(t *testing.T) {
	item := LineItem{ProductID: productID(1), MainQuantity: dec("5"), MainPrice: dec("10")}
	products := testReference().Products

	for _, policy := range []StockPolicy{StockWarn, StockOff} {
		rules := SalesConfig().rules()
		rules.StockPolicy = policy
		require.Empty(t, ValidateAll(validHeader(), []LineItem{item}, products, rules), string(policy))
	}

	w := CheckStock(item, products, dec("5"))
	require.Equal(t, StockExceeded, w.Level)
	require.Equal(t, "requested (5) exceeds available (3)", w.Message)
}

func TestCheckStock(t *testing.T) {
	products := testReference().Products
	threshold := dec("5")

	require.Equal(t, StockOK, CheckStock(LineItem{MainQuantity: dec("500")}, products, threshold).Level)

	low := CheckStock(LineItem{ProductID: productID(2), MainQuantity: dec("90"), SubQuantity: dec("7")}, products, threshold)
	require.Equal(t, StockLow, low.Level)
	require.Equal(t, "low remaining stock: 3", low.Message)

	exact := CheckStock(LineItem{ProductID: productID(1), MainQuantity: dec("3")}, products, threshold)
	require.Equal(t, StockOK, exact.Level)

	missing := CheckStock(LineItem{ProductID: productID(99), MainQuantity: dec("1")}, products, threshold)
	require.Equal(t, StockExceeded, missing.Level)
	requireDecimal(t, "0", missing.Available)
	requireDecimal(t, "0", AvailableQuantity(products, 99))
}

func TestFlatten(t *testing.T) {
	sub := Flatten(LineItem{ProductID: productID(3), ProductName: "Bread", SubQuantity: dec("4"), SubPrice: dec("0.5"), MainPrice: dec("4")})
	require.Equal(t, int64(3), sub.ProductID)
	requireDecimal(t, "4", sub.Quantity)
	requireDecimal(t, "0.5", sub.Price)
	requireDecimal(t, "2", sub.LineTotal)

	both := Flatten(LineItem{ProductID: productID(2), MainQuantity: dec("1"), MainPrice: dec("50"), SubQuantity: dec("2"), SubPrice: dec("5")})
	requireDecimal(t, "3", both.Quantity)
	requireDecimal(t, "50", both.Price)
	requireDecimal(t, "60", both.LineTotal)
}

func TestIssuedAt(t *testing.T) {
	at, err := IssuedAt(Header{Date: "2026-10-18", Time: "14:05"}, time.UTC)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 10, 18, 14, 5, 0, 0, time.UTC), at)

	midnight, err := IssuedAt(Header{Date: "2026-10-18"}, nil)
	require.NoError(t, err)
	require.Equal(t, 0, midnight.Hour())

	_, err = IssuedAt(Header{Date: "2026-10-18", Time: "25:00"}, time.UTC)
	require.ErrorIs(t, err, ErrInvalidDate)
}

func TestFilterAndVisibility(t *testing.T) {
	ref := testReference()
	require.Len(t, FilterProducts(ref.Products, "CO"), 2)
	require.Len(t, FilterProducts(ref.Products, "bread"), 1)
	require.Empty(t, FilterProducts(ref.Products, "milk"))
	require.Len(t, FilterCounterparties(ref.Counterparties, "cairo"), 1)

	require.False(t, SuggestionsVisible("", 3))
	require.False(t, SuggestionsVisible("   ", 3))
	require.False(t, SuggestionsVisible("milk", 0))
	require.True(t, SuggestionsVisible("co", 2))
}

func TestFormatAmount(t *testing.T) {
	en := SalesConfig().Language
	cases := map[string]string{
		"1234.5":               "1,234.50",
		"0":                    "0.00",
		"0.005":                "0.01",
		"-0.5":                 "-0.50",
		"-1234567.891":         "-1,234,567.89",
		"12345678901234567.89": "12,345,678,901,234,567.89",
		"9007199254740993.07":  "9,007,199,254,740,993.07",
		"1000000000000000000":  "1000000000000000000.00",
	}
	for in, want := range cases {
		require.Equal(t, want, FormatAmount(en, dec(in)), in)
	}
}

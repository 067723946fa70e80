package pricecache

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/better95159-hub/pricegate/internal/currency"
)

// Amount is a USD amount as emitted by the storefront: a JSON number or a
// numeric string such as "10.00". Null, empty and unparsable values are 0.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*a = 0
			return nil
		}
		*a = Amount(f)
		return nil
	}
	if bytes.Equal(data, []byte("false")) || bytes.Equal(data, []byte("true")) {
		*a = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*a = Amount(f)
	return nil
}

// ProductPrice is the base price pair of one product. Sale 0 means no sale.
type ProductPrice struct {
	Regular Amount `json:"regular"`
	Sale    Amount `json:"sale"`
}

// OnSale reports whether the sale price should be shown next to the
// struck-through regular price.
func (p ProductPrice) OnSale() bool {
	return p.Sale > 0 && p.Sale < p.Regular
}

// Entry is one cached price set for a currency. Prices are always USD base
// prices; Rate and Symbol describe the target currency.
type Entry struct {
	Prices    map[string]ProductPrice `json:"prices"`
	Currency  currency.Code           `json:"currency"`
	Symbol    string                  `json:"symbol"`
	Rate      float64                 `json:"rate"`
	Timestamp int64                   `json:"timestamp"`
}

// Valid reports whether every field of the entry is present.
func (e *Entry) Valid() bool {
	return e != nil &&
		e.Prices != nil &&
		e.Currency.Valid() &&
		e.Symbol != "" &&
		e.Rate > 0 &&
		e.Timestamp > 0
}

// Time returns the entry timestamp.
func (e *Entry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// RateTable is the shared exchange-rate document of the CDN strategy.
type RateTable struct {
	Rates     map[currency.Code]float64 `json:"rates"`
	Symbols   map[currency.Code]string  `json:"symbols"`
	Timestamp int64                     `json:"timestamp"`
}

func (t *RateTable) Valid() bool {
	return t != nil && t.Rates != nil && t.Timestamp > 0
}

// BasePriceTable is the shared USD price document of the CDN strategy.
type BasePriceTable struct {
	Prices    map[string]ProductPrice `json:"prices"`
	Timestamp int64                   `json:"timestamp"`
}

func (t *BasePriceTable) Valid() bool {
	return t != nil && t.Prices != nil && t.Timestamp > 0
}

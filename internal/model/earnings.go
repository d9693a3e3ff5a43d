package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Earnings holds exact accumulated totals. Rounding to cents happens only
// when the value is marshalled for display.
type Earnings struct {
	Pending  decimal.Decimal
	Verified decimal.Decimal
}

func (e Earnings) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"pending":  e.Pending.StringFixed(2),
		"verified": e.Verified.StringFixed(2),
	})
}

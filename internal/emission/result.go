package emission

import "github.com/shopspring/decimal"

// Unit is a mass unit for CO2e quantities.
type Unit string

const (
	UnitGrams     Unit = "g"
	UnitKilograms Unit = "kg"
	UnitTonnes    Unit = "t"
)

// Result is the outcome of a single emission calculation. All quantities are
// decimal to avoid float drift across millions of small ledger additions.
type Result struct {
	TotalKg   decimal.Decimal
	Breakdown map[string]decimal.Decimal
	Factors   map[string]any
}

// TotalGrams returns the total in grams.
func (r Result) TotalGrams() decimal.Decimal {
	return r.TotalKg.Mul(thousand)
}

var thousand = decimal.NewFromInt(1000)

// Convert converts a quantity between mass units. Conversions route through
// kilograms so a value is never scaled twice.
func Convert(value decimal.Decimal, from, to Unit) decimal.Decimal {
	if from == to {
		return value
	}
	kg := value
	switch from {
	case UnitGrams:
		kg = value.Div(thousand)
	case UnitTonnes:
		kg = value.Mul(thousand)
	}
	switch to {
	case UnitGrams:
		return kg.Mul(thousand)
	case UnitTonnes:
		return kg.Div(thousand)
	default:
		return kg
	}
}

package postgres

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/partshub/api/internal/repositories"
)

// NUMERIC values are bound and selected as text in both directions.

// numericReader parses NUMERIC columns selected as text, keeping the first failure.
type numericReader struct {
	err error
}

func (p *numericReader) read(column, raw string) decimal.Decimal {
	value, err := repositories.ParseDecimal(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", column, err)
	}
	return value
}

func (p *numericReader) optional(column string, raw *string) *decimal.Decimal {
	if raw == nil {
		return nil
	}
	value := p.read(column, *raw)
	return &value
}

// numericText renders an optional decimal as a NUMERIC parameter; nil binds NULL.
func numericText(value *decimal.Decimal) *string {
	if value == nil {
		return nil
	}
	s := value.String()
	return &s
}

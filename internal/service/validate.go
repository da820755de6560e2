package service

import (
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxInvoiceAmount is the largest value the invoices.amount NUMERIC(14, 2) column holds.
const maxInvoiceAmount = 999_999_999_999.99

// NewValidator returns the validator shared by the services, with the
// domain tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		return validMoney(fl.Field().Float())
	})
	return v
}

// validMoney accepts positive finite amounts with at most two decimals that
// fit the invoice column.
func validMoney(amount float64) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 || amount > maxInvoiceAmount {
		return false
	}
	s := strconv.FormatFloat(amount, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 && len(s)-i-1 > 2 {
		return false
	}
	return true
}

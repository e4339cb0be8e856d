package validator

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// cardTypes are the card networks the payment gateway accepts. The gateway
// rejects anything else with a 400, so we fail fast at the edge.
var cardTypes = map[string]struct{}{
	"SAMSUNG": {},
	"KB":      {},
	"HYUNDAI": {},
}

// New creates a new validator instance with custom validations registered.
// This ensures consistent validation across the application and tests.
func New() *validator.Validate {
	v := validator.New()

	// Register custom "notblank" validator - rejects whitespace-only strings
	// This is used for fields like user ids that must have meaningful content
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true // Not a string, let other validators handle it
		}
		return strings.TrimSpace(str) != ""
	})

	// Register custom "cardtype" validator for payment card types
	_ = v.RegisterValidation("cardtype", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true // Not a string, let other validators handle it
		}
		_, accepted := cardTypes[str]
		return accepted
	})

	return v
}

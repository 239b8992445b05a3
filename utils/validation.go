package utils

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var accountIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

func init() {
	validate = validator.New()
	RegisterCustomValidations(validate)
}

// ValidateStruct validates a struct using validation tags
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return err
	}
	return nil
}

// IsValidUUID checks if a string is a valid UUID
func IsValidUUID(uuid string) bool {
	r := regexp.MustCompile("^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$")
	return r.MatchString(uuid)
}

// IsValidAccountID checks if a string is a usable account identifier
func IsValidAccountID(id string) bool {
	return accountIDPattern.MatchString(id)
}

// ValidateAccountID validates an account ID
func ValidateAccountID(id string) error {
	if id == "" {
		return fmt.Errorf("account ID cannot be empty")
	}
	if !IsValidAccountID(id) {
		return fmt.Errorf("account ID %q contains invalid characters", id)
	}
	return nil
}

// RegisterCustomValidations registers custom validation functions on the
// given validator engine.
func RegisterCustomValidations(v *validator.Validate) {
	v.RegisterValidation("account_id", func(fl validator.FieldLevel) bool {
		return ValidateAccountID(fl.Field().String()) == nil
	})
}

package services

import (
	"fmt"
	"regexp"

	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/textutil"
)

var postalCodePattern = regexp.MustCompile(`^[A-Za-z0-9\s-]+$`)

// AddressValidator checks optional postal addresses. Every field is optional; only lengths and the
// postal code character set are enforced.
type AddressValidator struct{}

// Validate returns field failures for addr prefixed with prefix. A nil address is valid.
func (AddressValidator) Validate(addr *Address, prefix string) []FieldError {
	if addr == nil {
		return nil
	}

	var errs []FieldError
	limit := func(field, value string, max int) {
		if textutil.Length(value) > max {
			errs = append(errs, FieldError{Field: prefix + field, Message: fmt.Sprintf("must be at most %d characters", max)})
		}
	}

	limit("street", addr.Street, 255)
	limit("city", addr.City, 100)
	limit("state", addr.State, 100)
	limit("postal_code", addr.PostalCode, 20)
	limit("country", addr.Country, 100)

	if addr.PostalCode != "" && !postalCodePattern.MatchString(addr.PostalCode) {
		errs = append(errs, FieldError{Field: prefix + "postal_code", Message: "postal code may contain only letters, digits, spaces and hyphens"})
	}

	return errs
}

func normalizeAddress(addr *Address) *Address {
	if addr == nil {
		return nil
	}
	out := Address{
		Street:     textutil.Normalize(addr.Street),
		City:       textutil.Normalize(addr.City),
		State:      textutil.Normalize(addr.State),
		PostalCode: textutil.Normalize(addr.PostalCode),
		Country:    textutil.Normalize(addr.Country),
	}
	if out.IsZero() {
		return nil
	}
	return &out
}

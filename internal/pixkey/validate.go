// Package pixkey validates the string format of the five Pix key types
// before a key is registered against a wallet.
package pixkey

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"pixwallet/internal/domain"
	walleterrors "pixwallet/internal/errors"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_+&*-]+(?:\.[a-zA-Z0-9_+&*-]+)*@(?:[a-zA-Z0-9-]+\.)+[a-zA-Z]{2,7}$`)
	phonePattern = regexp.MustCompile(`^\+55[1-9][0-9]{10}$`)
	digitsOnly   = regexp.MustCompile(`[^0-9]`)
)

// Validate checks that value is well-formed for keyType, returning
// INVALID_PIX_KEY when it is not.
func Validate(value string, keyType domain.PixKeyType) error {
	switch keyType {
	case domain.PixKeyEmail:
		return validateEmail(value)
	case domain.PixKeyPhone:
		return validatePhone(value)
	case domain.PixKeyCPF:
		return validateCPF(value)
	case domain.PixKeyCNPJ:
		return validateCNPJ(value)
	case domain.PixKeyEVP:
		return validateEVP(value)
	default:
		return walleterrors.Newf(walleterrors.InvalidPixKey, "unknown pix key type %q", keyType)
	}
}

func validateEmail(value string) error {
	if !emailPattern.MatchString(value) {
		return walleterrors.New(walleterrors.InvalidPixKey, "invalid email pix key format")
	}
	return nil
}

func validatePhone(value string) error {
	if !phonePattern.MatchString(value) {
		return walleterrors.New(walleterrors.InvalidPixKey, "invalid phone pix key format, expected +55DDXXXXXXXXX")
	}
	return nil
}

func validateCPF(value string) error {
	digits := digitsOnly.ReplaceAllString(value, "")
	if len(digits) != 11 {
		return walleterrors.New(walleterrors.InvalidPixKey, "cpf pix key must have 11 digits")
	}
	if isAllRepeated(digits) {
		return walleterrors.New(walleterrors.InvalidPixKey, "cpf pix key cannot be a repeated-digit sequence")
	}
	return nil
}

func validateCNPJ(value string) error {
	digits := digitsOnly.ReplaceAllString(value, "")
	if len(digits) != 14 {
		return walleterrors.New(walleterrors.InvalidPixKey, "cnpj pix key must have 14 digits")
	}
	if isAllRepeated(digits) {
		return walleterrors.New(walleterrors.InvalidPixKey, "cnpj pix key cannot be a repeated-digit sequence")
	}
	return nil
}

func validateEVP(value string) error {
	if _, err := uuid.Parse(value); err != nil {
		return walleterrors.New(walleterrors.InvalidPixKey, "evp pix key must be a valid uuid")
	}
	return nil
}

func isAllRepeated(digits string) bool {
	return strings.Count(digits, string(digits[0])) == len(digits)
}

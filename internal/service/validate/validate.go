package validate

import (
	"errors"
	"strings"
)

// Control letters for DNI and NIE, indexed by number mod 23
const dniLetters = "TRWAGMYFPDXBNJZSQVHLCKE"

// Control letters for CIF, indexed by control digit
const cifLetters = "JABCDEFGHI"

var (
	ErrTaxIDFormat  = errors.New("tax id has invalid format")
	ErrTaxIDControl = errors.New("tax id control character does not match")
)

// NormalizeTaxID uppercases and removes spaces, dots and dashes
func NormalizeTaxID(taxID string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.':
			return -1
		}
		if r >= 'a' && r <= 'z' {
			return r - 'a' + 'A'
		}
		return r
	}, taxID)
}

// NIF validates Spanish tax identification number: DNI, NIE or CIF
// Input has to be normalized already, see NormalizeTaxID
func NIF(taxID string) error {
	if len(taxID) != 9 {
		return ErrTaxIDFormat
	}

	switch first := taxID[0]; {
	case isDigit(first):
		return dni(taxID)
	case first == 'X' || first == 'Y' || first == 'Z':
		// NIE prefix is replaced with digit and checked as DNI
		prefix := map[byte]byte{'X': '0', 'Y': '1', 'Z': '2'}[first]
		return dni(string(prefix) + taxID[1:])
	case strings.IndexByte("ABCDEFGHJKLMNPQRSUVW", first) >= 0:
		return cif(taxID)
	default:
		return ErrTaxIDFormat
	}
}

func dni(value string) error {
	number := 0
	for i := range 8 {
		if !isDigit(value[i]) {
			return ErrTaxIDFormat
		}
		number = number*10 + int(value[i]-'0')
	}

	if value[8] != dniLetters[number%23] {
		return ErrTaxIDControl
	}

	return nil
}

func cif(value string) error {
	digits := value[1:8]
	sum := 0
	for i := range len(digits) {
		d := digits[i]
		if !isDigit(d) {
			return ErrTaxIDFormat
		}
		n := int(d - '0')

		// Odd positions (1st, 3rd...) are doubled and their digits summed
		if i%2 == 0 {
			n *= 2
			n = n/10 + n%10
		}
		sum += n
	}

	control := (10 - sum%10) % 10
	digit, letter := byte('0'+control), cifLetters[control]

	got := value[8]
	switch value[0] {
	case 'A', 'B', 'E', 'H':
		if got == digit {
			return nil
		}
	case 'K', 'P', 'Q', 'S', 'N', 'W':
		if got == letter {
			return nil
		}
	default:
		if got == digit || got == letter {
			return nil
		}
	}

	if !isDigit(got) && (got < 'A' || got > 'Z') {
		return ErrTaxIDFormat
	}
	return ErrTaxIDControl
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

package sms

import (
	"strings"
)

// CountryCode is the single-digit country code every normalized number starts with.
const CountryCode = "7"

// legacyTrunkPrefix is the domestic dialing prefix replaced by CountryCode.
const legacyTrunkPrefix = '8'

// PhoneNumber is a normalized 11-digit subscriber number starting with CountryCode.
// The zero value is not valid; construct with NewPhoneNumber.
type PhoneNumber struct {
	value string
}

// NewPhoneNumber strips every non-digit from raw and normalizes the result:
// a 10-digit number gets CountryCode prepended and an 11-digit number with the
// legacy 8 prefix has that digit replaced.
func NewPhoneNumber(raw string) (PhoneNumber, error) {
	digits := stripNonDigits(raw)
	if digits == "" {
		return PhoneNumber{}, invalidArgument("phone number cannot be empty")
	}

	if len(digits) == 10 {
		digits = CountryCode + digits
	}
	if len(digits) != 11 {
		return PhoneNumber{}, invalidArgument("phone number must be 11 digits")
	}
	if digits[0] == legacyTrunkPrefix {
		digits = CountryCode + digits[1:]
	}
	if !strings.HasPrefix(digits, CountryCode) {
		return PhoneNumber{}, invalidArgument("phone number must start with " + CountryCode)
	}

	return PhoneNumber{value: digits}, nil
}

// Value returns the normalized digit string, e.g. "79251234567".
func (p PhoneNumber) Value() string { return p.value }

func (p PhoneNumber) String() string { return p.value }

// E164 returns the number with a leading '+'.
func (p PhoneNumber) E164() string { return "+" + p.value }

// DEF returns the three-digit numbering-plan code following the country code.
func (p PhoneNumber) DEF() string {
	if len(p.value) < 4 {
		return ""
	}
	return p.value[1:4]
}

// stripNonDigits keeps only ASCII digits. Non-ASCII digit runes (e.g.
// Arabic-Indic) are dropped along with every other character.
func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

package models

import (
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

// NormalizePhone keeps the digits of phone and puts it in international form
// for countryCode: local numbers lose their leading zeros and gain the code.
func NormalizePhone(phone, countryCode string) string {
	digits := nonDigits.ReplaceAllString(phone, "")
	if digits == "" || countryCode == "" || strings.HasPrefix(digits, countryCode) {
		return digits
	}
	if strings.HasPrefix(digits, "0") {
		return countryCode + strings.TrimLeft(digits, "0")
	}
	return digits
}

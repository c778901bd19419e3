package utils

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
)

var nonDigitRegex = regexp.MustCompile(`\D`)

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteJSONError(w http.ResponseWriter, message string, code int) {
	WriteJSON(w, code, map[string]string{"error": message})
}

// NormalizePhoneIN reduces an Indian mobile number to its 10 local digits.
// "+91 98765-43210", "09876543210" and "9876543210" all become "9876543210".
// Anything that does not end up as 10 digits is returned as digits only.
func NormalizePhoneIN(phone string) string {
	digits := nonDigitRegex.ReplaceAllString(strings.TrimSpace(phone), "")

	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		return digits[2:]
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		return digits[1:]
	}
	return digits
}

func StrPtr(s string) *string {
	return &s
}

func PtrString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

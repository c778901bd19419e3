package utils

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
	"time"
)

const (
	txnSuffixLen   = 5
	txnSuffixChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var compactUUIDRegex = regexp.MustCompile(`^[0-9a-f]{32}$`)

// GenerateMerchantTransactionID builds a gateway reference that carries the
// order id: the dashless order UUID, a dash and a random 5-char suffix
// (38 chars, PhonePe's maximum). Each payment attempt gets a new suffix.
func GenerateMerchantTransactionID(orderID string) string {
	var suffix strings.Builder
	suffix.Grow(txnSuffixLen)

	base := big.NewInt(int64(len(txnSuffixChars)))
	for i := 0; i < txnSuffixLen; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			// fallback: time-based entropy
			n = big.NewInt((time.Now().UnixNano() >> (i * 5)) % int64(len(txnSuffixChars)))
		}
		suffix.WriteByte(txnSuffixChars[n.Int64()])
	}

	return strings.ReplaceAll(strings.ToLower(orderID), "-", "") + "-" + suffix.String()
}

// ParseMerchantTransactionID recovers the order UUID from a reference made by
// GenerateMerchantTransactionID.
func ParseMerchantTransactionID(txnID string) (string, bool) {
	compact, _, found := strings.Cut(txnID, "-")
	if !found || !compactUUIDRegex.MatchString(compact) {
		return "", false
	}
	return compact[0:8] + "-" + compact[8:12] + "-" + compact[12:16] + "-" + compact[16:20] + "-" + compact[20:32], true
}

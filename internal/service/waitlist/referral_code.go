package waitlist

import (
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/ignite/waitlist-engine/internal/domain"
)

const (
	referralPrefix  = "hs_"
	referralCodeLen = 6
)

// ReferralCode derives the referral code for an email.
//
// The hash is h = h*31 + c over the UTF-16 code units of the normalized
// email, wrapped to int32. Codes issued by earlier deployments were computed
// the same way, so the arithmetic must not change.
func ReferralCode(email string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(domain.NormalizeEmail(email))) {
		h = h*31 + int32(c)
	}

	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}

	code := strconv.FormatInt(abs, 36)
	if len(code) > referralCodeLen {
		code = code[:referralCodeLen]
	}
	return referralPrefix + code + strings.Repeat("0", referralCodeLen-len(code))
}

// ValidReferralCode reports whether code has the shape ReferralCode produces.
func ValidReferralCode(code string) bool {
	if len(code) != len(referralPrefix)+referralCodeLen || !strings.HasPrefix(code, referralPrefix) {
		return false
	}
	for _, c := range code[len(referralPrefix):] {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}

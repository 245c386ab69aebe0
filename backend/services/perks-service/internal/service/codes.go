package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// promoAlphabet omits characters that read ambiguously on a phone screen.
const promoAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const promoCodeLength = 8

// generatePin returns a six-digit code formatted for an in-car display,
// e.g. "493-072".
func generatePin() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("pin: %w", err)
	}
	digits := fmt.Sprintf("%06d", n.Int64())
	return digits[:3] + "-" + digits[3:], nil
}

// generatePromoCode returns a single-use merchant promo code.
func generatePromoCode() (string, error) {
	buf := make([]byte, promoCodeLength)
	max := big.NewInt(int64(len(promoAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("promo code: %w", err)
		}
		buf[i] = promoAlphabet[n.Int64()]
	}
	return "PERK-" + string(buf), nil
}

package credentials

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
)

const (
	otpMin = 100000
	otpMax = 999999
)

var otpSpan = big.NewInt(otpMax - otpMin + 1)

// GenerateOTP returns a uniformly random 6-digit code in [100000, 999999]
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpan)
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}

// ValidOTPFormat reports whether code looks like a generated code
func ValidOTPFormat(code string) bool {
	if len(code) != 6 {
		return false
	}
	n, err := strconv.Atoi(code)
	return err == nil && n >= otpMin && n <= otpMax
}

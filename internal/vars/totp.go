package vars

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// TOTPVar is the template variable that renders a one-time code.
	TOTPVar = "TOTP"
	// TOTPSecretVar holds the base32 secret TOTPVar is derived from.
	TOTPSecretVar = TOTPVar + "_SECRET"
)

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTP generates the current code for a base32 secret. Spaces and case in the
// secret are ignored.
func TOTP(secret string, now time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("totp secret cannot be empty")
	}
	code, err := totp.GenerateCodeCustom(cleanSecret(secret), now.UTC(), totpOpts)
	if err != nil {
		return "", fmt.Errorf("failed to generate totp code: %w", err)
	}
	return code, nil
}

// ValidateTOTP checks a code against a secret, allowing one period of skew.
func ValidateTOTP(code, secret string, now time.Time) (bool, error) {
	if secret == "" {
		return false, fmt.Errorf("totp secret cannot be empty")
	}
	if code == "" {
		return false, fmt.Errorf("passcode cannot be empty")
	}
	valid, err := totp.ValidateCustom(code, cleanSecret(secret), now.UTC(), totpOpts)
	if err != nil {
		return false, fmt.Errorf("failed to validate totp code: %w", err)
	}
	return valid, nil
}

// WithTOTP returns a copy of values where a TOTP_SECRET entry is replaced by
// a rendered TOTP code. The secret itself never becomes a template variable.
func WithTOTP(values map[string]string, now time.Time) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	secret, ok := out[TOTPSecretVar]
	if !ok {
		return out, nil
	}
	delete(out, TOTPSecretVar)
	code, err := TOTP(secret, now)
	if err != nil {
		return nil, err
	}
	out[TOTPVar] = code
	return out, nil
}

func cleanSecret(secret string) string {
	return strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
}

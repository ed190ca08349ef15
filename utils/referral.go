package utils

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"image/png"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

// ReferralType is the prefix of a referral code and names who owns it
type ReferralType string

const UserType ReferralType = "USR"

const referralSuffixLen = 6

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateReferralCode returns {TYPE}-{RANDOM}, RANDOM being 6 characters of
// upper-case base32, e.g. USR-ABC234
func GenerateReferralCode(entityType ReferralType) (string, error) {
	// 4 random bytes give 7 base32 characters
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}

	suffix := codeEncoding.EncodeToString(randomBytes)[:referralSuffixLen]
	return string(entityType) + "-" + suffix, nil
}

// GenerateUserReferralCode generates a referral code for a customer
func GenerateUserReferralCode() (string, error) {
	return GenerateReferralCode(UserType)
}

// NormalizeReferralCode trims and upper-cases user input
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ReferralQRCode renders content as a 300x300 PNG QR code data URI
func ReferralQRCode(content string) (string, error) {
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return "", err
	}

	code, err = barcode.Scale(code, 300, 300)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

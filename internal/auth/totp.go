package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	totpPeriod     = 30
	totpSkew       = 1
	totpSecretSize = 32 // bytes, 256 bits

	// backupCodeCharset excludes 0/O and 1/I/L.
	backupCodeCharset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
	backupCodeGroups  = 3
	backupCodeGroup   = 4
)

// OTPKey is a freshly generated TOTP secret and its provisioning URI.
type OTPKey struct {
	Secret string // base32
	URI    string // otpauth://
}

// TOTPManager generates and validates RFC 6238 codes (SHA1, 6 digits, 30s).
type TOTPManager struct {
	issuer string
	now    func() time.Time
}

func NewTOTPManager(issuer string) *TOTPManager {
	return &TOTPManager{
		issuer: issuer,
		now:    time.Now,
	}
}

// GenerateSecret creates a random secret labelled issuer:accountName.
func (tm *TOTPManager) GenerateSecret(accountName string) (*OTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  totpSecretSize,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	return &OTPKey{Secret: key.Secret(), URI: key.URL()}, nil
}

// Verify checks code against the current step, tolerating one step of skew either way.
func (tm *TOTPManager) Verify(secret, code string) bool {
	return tm.VerifyAt(secret, code, tm.now())
}

func (tm *TOTPManager) VerifyAt(secret, code string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return false
	}

	valid, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}

// QRCodeDataURL renders uri as a PNG data URL.
func (tm *TOTPManager) QRCodeDataURL(uri string) (string, error) {
	qr, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(200)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// GenerateBackupCodes returns count codes shaped XXXX-XXXX-XXXX.
func GenerateBackupCodes(count int) ([]string, error) {
	max := big.NewInt(int64(len(backupCodeCharset)))

	codes := make([]string, count)
	for i := range codes {
		var b strings.Builder
		for g := 0; g < backupCodeGroups; g++ {
			if g > 0 {
				b.WriteByte('-')
			}
			for j := 0; j < backupCodeGroup; j++ {
				n, err := rand.Int(rand.Reader, max)
				if err != nil {
					return nil, fmt.Errorf("failed to generate backup code: %w", err)
				}
				b.WriteByte(backupCodeCharset[n.Int64()])
			}
		}
		codes[i] = b.String()
	}
	return codes, nil
}

// NormalizeBackupCode trims and upper-cases user input.
func NormalizeBackupCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

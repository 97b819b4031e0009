package recovery

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

const codeLength = 6

// generateCode draws each digit independently from crypto/rand; leading zeros are allowed.
func generateCode() (string, error) {
	var sb strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("read random digit: %w", err)
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}

// hashCodeHex returns SHA-256(device:email:code:salt) as hex for DB storage
func hashCodeHex(deviceUUID, email, code, salt string) string {
	return hex.EncodeToString(hashCodeBytes(deviceUUID, email, code, salt))
}

func hashCodeBytes(deviceUUID, email, code, salt string) []byte {
	data := fmt.Sprintf("%s:%s:%s:%s", deviceUUID, email, code, salt)
	hash := sha256.Sum256([]byte(data))
	return hash[:]
}

func constantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

func isSixDigits(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// NormalizeEmail trims and lowercases an address. Storage and comparison always use this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MaskEmail hides most of the local part for logging (e.g. ab****@example.com)
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return "****"
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return "****" + domain
	}
	return local[:2] + strings.Repeat("*", len(local)-2) + domain
}

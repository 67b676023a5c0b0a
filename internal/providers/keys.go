package providers

import (
	"crypto/rand"
	"fmt"
	"math/big"

	webpush "github.com/SherClockHolmes/webpush-go"
)

const (
	pushTokenLength  = 16
	pushTokenLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// GenerateVAPIDKeys returns a fresh P-256 key pair, base64url encoded.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate vapid keys: %w", err)
	}
	return publicKey, privateKey, nil
}

// GeneratePushToken returns a random token of 16 ASCII letters.
func GeneratePushToken() (string, error) {
	max := big.NewInt(int64(len(pushTokenLetters)))
	token := make([]byte, pushTokenLength)
	for i := range token {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate push token: %w", err)
		}
		token[i] = pushTokenLetters[n.Int64()]
	}
	return string(token), nil
}

package browser

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Chromium v10 cookie encryption on Linux: AES-128-CBC with a key derived
// from the static password "peanuts". v11 values are keyed from the OS
// keyring and cannot be recovered without it.
var (
	v10Prefix = []byte("v10")
	v11Prefix = []byte("v11")
)

// ChromiumDecryptor recovers Chromium v10 encrypted cookie values. Firefox
// stores values in the clear, so it never reaches a decryptor.
type ChromiumDecryptor struct {
	key []byte
}

// NewChromiumDecryptor derives the static v10 key once.
func NewChromiumDecryptor() *ChromiumDecryptor {
	return &ChromiumDecryptor{
		key: pbkdf2.Key([]byte("peanuts"), []byte("saltysalt"), 1, 16, sha1.New),
	}
}

// Decrypt recovers the cookie plaintext from a Chromium encrypted_value
// blob.
func (d *ChromiumDecryptor) Decrypt(browser Browser, encrypted []byte) (string, error) {
	if bytes.HasPrefix(encrypted, v11Prefix) {
		return "", fmt.Errorf("v11 cookie values require OS keyring access")
	}
	if !bytes.HasPrefix(encrypted, v10Prefix) {
		return "", fmt.Errorf("unrecognized cookie encryption scheme")
	}

	data := encrypted[len(v10Prefix):]
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", fmt.Errorf("encrypted value is not block-aligned")
	}

	block, err := aes.NewCipher(d.key)
	if err != nil {
		return "", err
	}
	iv := bytes.Repeat([]byte{' '}, aes.BlockSize)
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)

	plain, err = stripPKCS7(plain)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func stripPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-pad], nil
}

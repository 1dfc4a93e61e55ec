package solana

import (
	"errors"
	"fmt"

	"github.com/fernet/fernet-go"
)

// ErrDecryptFailed is returned when no configured key opens a token.
var ErrDecryptFailed = errors.New("fernet token could not be decrypted")

// FernetDecrypter opens private keys stored as Fernet tokens. Several keys
// may be configured to support rotation; the first that verifies wins.
type FernetDecrypter struct {
	keys []*fernet.Key
}

var _ Decrypter = (*FernetDecrypter)(nil)

// NewFernetDecrypter decodes keys given as URL-safe base64, standard base64
// or hex.
func NewFernetDecrypter(keys ...string) (*FernetDecrypter, error) {
	decoded, err := fernet.DecodeKeys(keys...)
	if err != nil {
		return nil, fmt.Errorf("decode fernet keys: %w", err)
	}
	return &FernetDecrypter{keys: decoded}, nil
}

// Decrypt returns the plain text of token. Tokens never expire.
func (d *FernetDecrypter) Decrypt(token string) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(token), 0, d.keys)
	if msg == nil {
		return "", ErrDecryptFailed
	}
	return string(msg), nil
}

// Encrypt seals plain with the first configured key.
func (d *FernetDecrypter) Encrypt(plain string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plain), d.keys[0])
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return string(tok), nil
}

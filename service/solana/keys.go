package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// encryptedKeyMarker prefixes Fernet tokens produced by the key-encryption tool.
const encryptedKeyMarker = "gAAA"

// Decrypter turns an encrypted private-key token back into its plain form.
type Decrypter interface {
	Decrypt(token string) (string, error)
}

// KeyPair holds a signing key and its derived address. It is owned by one
// workflow at a time and never rendered with its secret.
type KeyPair struct {
	private solana.PrivateKey
	public  solana.PublicKey
}

// PublicKey returns the wallet address.
func (k *KeyPair) PublicKey() solana.PublicKey { return k.public }

// PrivateKey returns the 64-byte expanded ed25519 key.
func (k *KeyPair) PrivateKey() solana.PrivateKey { return k.private }

// String renders the address only.
func (k *KeyPair) String() string { return k.public.String() }

// LogValue keeps key material out of structured logs.
func (k *KeyPair) LogValue() slog.Value { return slog.StringValue(k.public.String()) }

func keyPairFromSeed(seed []byte) *KeyPair {
	priv := ed25519.NewKeyFromSeed(seed)
	var pub solana.PublicKey
	copy(pub[:], priv[ed25519.SeedSize:])
	return &KeyPair{private: solana.PrivateKey(priv), public: pub}
}

// KeyParser normalizes the supported private-key representations into a KeyPair.
type KeyParser struct {
	decrypter Decrypter
	logger    *slog.Logger
}

// NewKeyParser creates a parser. decrypter may be nil when encrypted keys are not used.
func NewKeyParser(decrypter Decrypter, logger *slog.Logger) *KeyParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyParser{decrypter: decrypter, logger: logger}
}

// Generate creates a fresh random keypair.
func (p *KeyParser) Generate() (*KeyPair, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate seed: %w", err)
	}
	return keyPairFromSeed(seed), nil
}

// ParseString accepts a bracketed byte list, an encrypted token, or a base58
// secret. An empty string generates a new keypair.
func (p *KeyParser) ParseString(s string) (*KeyPair, error) {
	return p.parseString(s, true)
}

func (p *KeyParser) parseString(s string, allowDecrypt bool) (*KeyPair, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return p.Generate()
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") && len(s) > 2:
		raw, err := parseByteList(s)
		if err != nil {
			return nil, err
		}
		if len(raw) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyFormat, ed25519.PrivateKeySize, len(raw))
		}
		return p.ParseBytes(raw)
	case strings.Contains(s, encryptedKeyMarker):
		if !allowDecrypt {
			return nil, fmt.Errorf("%w: decrypted key is still encrypted", ErrInvalidKeyFormat)
		}
		if p.decrypter == nil {
			return nil, fmt.Errorf("%w: encrypted key but no decrypter configured", ErrInvalidKeyFormat)
		}
		plain, err := p.decrypter.Decrypt(s)
		if err != nil {
			return nil, fmt.Errorf("%w: decrypt: %v", ErrInvalidKeyFormat, err)
		}
		return p.parseString(plain, false)
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base58: %v", ErrInvalidKeyFormat, err)
	}
	return p.ParseBytes(raw)
}

// ParseBytes accepts a 64-byte expanded key (seed followed by public key) or a 32-byte seed.
// A mismatching embedded public key is reported as a warning; the key derived
// from the seed is used.
func (p *KeyParser) ParseBytes(raw []byte) (*KeyPair, error) {
	switch len(raw) {
	case ed25519.SeedSize:
		return keyPairFromSeed(raw), nil
	case ed25519.PrivateKeySize:
	default:
		return nil, fmt.Errorf("%w: expected %d or %d bytes, got %d",
			ErrInvalidKeyFormat, ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}

	kp := keyPairFromSeed(raw[:ed25519.SeedSize])
	embedded := raw[ed25519.SeedSize:]
	if !bytes.Equal(kp.public[:], embedded) {
		_, pointErr := new(edwards25519.Point).SetBytes(embedded)
		p.logger.Warn("embedded public key does not match seed, using derived key",
			"derived", kp.public.String(),
			"embedded", base58.Encode(embedded),
			"embedded_on_curve", pointErr == nil,
		)
	}
	return kp, nil
}

func parseByteList(s string) ([]byte, error) {
	inner := strings.Trim(s, "[] \t\n")
	parts := strings.Split(inner, ",")
	out := make([]byte, 0, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: byte %d: %v", ErrInvalidKeyFormat, i, err)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

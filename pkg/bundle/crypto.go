package bundle

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// KeySource says where a signing key came from.
type KeySource string

const (
	KeyFromFiles     KeySource = "files"
	KeyFromSeed      KeySource = "seed"
	KeyFromEphemeral KeySource = "ephemeral"
)

// Signer holds the Ed25519 key pair used to seal metadata.
type Signer struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
	Source  KeySource
}

// KeyConfig selects a signing key. Files win over Seed; with neither an
// ephemeral key is generated.
type KeyConfig struct {
	PrivateKeyPath string
	PublicKeyPath  string
	Seed           string
}

// NewSigner resolves cfg to a key pair.
func NewSigner(cfg KeyConfig) (*Signer, error) {
	switch {
	case cfg.PrivateKeyPath != "":
		priv, pub, err := LoadKeyFiles(cfg.PrivateKeyPath, cfg.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		return &Signer{Private: priv, Public: pub, Source: KeyFromFiles}, nil

	case cfg.Seed != "":
		seed := sha256.Sum256([]byte(cfg.Seed))
		priv := ed25519.NewKeyFromSeed(seed[:])
		return &Signer{Private: priv, Public: priv.Public().(ed25519.PublicKey), Source: KeyFromSeed}, nil
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	return &Signer{Private: priv, Public: pub, Source: KeyFromEphemeral}, nil
}

// Sign signs data with the private key.
func (s *Signer) Sign(data []byte) []byte {
	return ed25519.Sign(s.Private, data)
}

func ed25519Verify(pub, msg, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// LoadKeyFiles reads PEM encoded Ed25519 keys. PKCS#8 / PKIX and raw key
// bytes are accepted. An empty publicPath derives the public key.
func LoadKeyFiles(privatePath, publicPath string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	block, err := readPEM(privatePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read private key: %w", err)
	}

	var priv ed25519.PrivateKey
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		k, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, nil, errors.New("private key is not Ed25519")
		}
		priv = k
	} else if len(block.Bytes) == ed25519.PrivateKeySize {
		priv = ed25519.PrivateKey(block.Bytes)
	} else {
		return nil, nil, fmt.Errorf("unable to parse private key: %w", err)
	}

	if publicPath == "" {
		return priv, priv.Public().(ed25519.PublicKey), nil
	}

	block, err = readPEM(publicPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read public key: %w", err)
	}
	var pub ed25519.PublicKey
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		k, ok := key.(ed25519.PublicKey)
		if !ok {
			return nil, nil, errors.New("public key is not Ed25519")
		}
		pub = k
	} else if len(block.Bytes) == ed25519.PublicKeySize {
		pub = ed25519.PublicKey(block.Bytes)
	} else {
		return nil, nil, fmt.Errorf("unable to parse public key: %w", err)
	}
	return priv, pub, nil
}

// WriteKeyFiles stores a key pair as PKCS#8 / PKIX PEM files.
func WriteKeyFiles(priv ed25519.PrivateKey, privatePath, publicPath string) error {
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(priv.Public())
	if err != nil {
		return err
	}
	if err := os.WriteFile(privatePath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}), 0o600); err != nil {
		return err
	}
	return os.WriteFile(publicPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), FilePerms)
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block found", path)
	}
	return block, nil
}

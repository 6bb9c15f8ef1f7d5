package host

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// KeyPair is an SSH identity in OpenSSH formats.
type KeyPair struct {
	Private []byte // PEM encoded private key
	Public  []byte // authorized_keys line
}

// GenerateKeyPair creates an RSA SSH key pair.
func GenerateKeyPair(bits int, comment string) (*KeyPair, error) {
	if bits == 0 {
		bits = 4096
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate rsa key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(key, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	pub, err := ssh.NewPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	line := ssh.MarshalAuthorizedKey(pub)
	if comment != "" {
		line = append(line[:len(line)-1], []byte(" "+comment+"\n")...)
	}

	return &KeyPair{Private: pem.EncodeToMemory(block), Public: line}, nil
}

// ValidPrivateKey reports whether data parses as an unencrypted SSH
// private key.
func ValidPrivateKey(data []byte) bool {
	_, err := ssh.ParseRawPrivateKey(data)
	return err == nil
}

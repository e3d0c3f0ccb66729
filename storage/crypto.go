package storage

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

var _ Store = (*EncryptedStore)(nil)

// EncryptedStore wraps another Store and encrypts every value at rest
// with XChaCha20-Poly1305. Keys stay in the clear so change
// notification and prefix scoping still work; only the values (the
// tokens) are protected.
type EncryptedStore struct {
	inner Store
	key   []byte
}

// NewEncryptedStore wraps inner with value encryption. The key must be
// chacha20poly1305.KeySize (32) bytes.
func NewEncryptedStore(inner Store, key []byte) (*EncryptedStore, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.Errorf("[NewEncryptedStore] key must be %d bytes", chacha20poly1305.KeySize)
	}
	if _, err := chacha20poly1305.NewX(key); err != nil {
		return nil, errors.Wrap(err, "[NewEncryptedStore] chacha20poly1305.NewX")
	}
	return &EncryptedStore{inner: inner, key: append([]byte(nil), key...)}, nil
}

func (e *EncryptedStore) Get(key string) (string, bool, error) {
	sealed, ok, err := e.inner.Get(key)
	if err != nil || !ok {
		return "", ok, err
	}
	plain, err := e.open(sealed)
	if err != nil {
		return "", false, errors.Wrap(err, "[EncryptedStore.Get] open")
	}
	return plain, true, nil
}

func (e *EncryptedStore) Set(key, value string) error {
	sealed, err := e.seal(value)
	if err != nil {
		return errors.Wrap(err, "[EncryptedStore.Set] seal")
	}
	return e.inner.Set(key, sealed)
}

func (e *EncryptedStore) Delete(key string) error { return e.inner.Delete(key) }

func (e *EncryptedStore) Subscribe(fn func(key string)) func() {
	return e.inner.Subscribe(fn)
}

func (e *EncryptedStore) Close() error { return e.inner.Close() }

func (e *EncryptedStore) seal(value string) (string, error) {
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(value), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *EncryptedStore) open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("ciphertext shorter than nonce")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

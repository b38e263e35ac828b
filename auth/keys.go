package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// KeySet is an in-memory ring of Ed25519 keys with a designated active key
// for signing. Keys that are no longer active still verify until removed,
// which allows rotation without invalidating outstanding credentials.
type KeySet struct {
	mu        sync.RWMutex
	activeKid string
	privKeys  map[string]ed25519.PrivateKey
	pubKeys   map[string]ed25519.PublicKey
}

func NewKeySet() *KeySet {
	return &KeySet{
		privKeys: make(map[string]ed25519.PrivateKey),
		pubKeys:  make(map[string]ed25519.PublicKey),
	}
}

// GenerateKeySet returns a KeySet holding one freshly generated active key.
func GenerateKeySet() (*KeySet, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	ks := NewKeySet()
	kid := uuid.NewString()
	ks.AddEd25519Key(kid, priv)
	if err := ks.SetActive(kid); err != nil {
		return nil, err
	}
	return ks, nil
}

// KeySetFromSeed derives a single active key from a 32-byte seed.
func KeySetFromSeed(kid string, seed []byte) (*KeySet, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	if kid == "" {
		return nil, fmt.Errorf("kid is required")
	}
	ks := NewKeySet()
	ks.AddEd25519Key(kid, ed25519.NewKeyFromSeed(seed))
	if err := ks.SetActive(kid); err != nil {
		return nil, err
	}
	return ks, nil
}

// AddEd25519Key registers a key pair under kid. The active key is unchanged.
func (k *KeySet) AddEd25519Key(kid string, priv ed25519.PrivateKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.privKeys[kid] = priv
	k.pubKeys[kid] = priv.Public().(ed25519.PublicKey)
}

// Remove drops kid. The active key cannot be removed.
func (k *KeySet) Remove(kid string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if kid == k.activeKid {
		return fmt.Errorf("cannot remove active kid: %s", kid)
	}
	delete(k.privKeys, kid)
	delete(k.pubKeys, kid)
	return nil
}

// SetActive selects the key used for signing.
func (k *KeySet) SetActive(kid string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.privKeys[kid]; !ok {
		return fmt.Errorf("unknown kid: %s", kid)
	}
	k.activeKid = kid
	return nil
}

func (k *KeySet) ActiveKID() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.activeKid
}

func (k *KeySet) signingKey() (string, ed25519.PrivateKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.activeKid == "" {
		return "", nil, fmt.Errorf("no active kid configured")
	}
	priv, ok := k.privKeys[k.activeKid]
	if !ok {
		return "", nil, fmt.Errorf("active kid not found: %s", k.activeKid)
	}
	return k.activeKid, priv, nil
}

func (k *KeySet) publicKey(kid string) (ed25519.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pub, ok := k.pubKeys[kid]
	return pub, ok
}

// PublicKeys returns a copy of every public key keyed by kid.
func (k *KeySet) PublicKeys() map[string]ed25519.PublicKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make(map[string]ed25519.PublicKey, len(k.pubKeys))
	for kid, pub := range k.pubKeys {
		out[kid] = pub
	}
	return out
}

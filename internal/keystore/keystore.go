package keystore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound      = errors.New("wallet not found")
	ErrDuplicateName = errors.New("wallet name already exists")
	ErrInvalidName   = errors.New("invalid wallet name")
	ErrCorruptWallet = errors.New("corrupt wallet entry")
)

// Wallet is one entry of the wallet collection file. Both key fields encode
// the same 64-byte ed25519 secret (seed followed by public key).
type Wallet struct {
	Name       string `json:"name"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	SecretKey  string `json:"secret_key"`
}

func newWallet(name string) Wallet {
	account := solana.NewWallet()
	secret := []byte(account.PrivateKey)
	return Wallet{
		Name:       name,
		PublicKey:  account.PublicKey().String(),
		PrivateKey: base58.Encode(secret),
		SecretKey:  hex.EncodeToString(secret),
	}
}

// Address returns the on-chain address.
func (w Wallet) Address() (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(w.PublicKey)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %s: public_key: %v", ErrCorruptWallet, w.Name, err)
	}
	return pk, nil
}

// Signer decodes the secret key and checks it matches the stored address.
func (w Wallet) Signer() (solana.PrivateKey, error) {
	raw, err := hex.DecodeString(w.SecretKey)
	if err != nil || len(raw) != 64 {
		// older files may only carry the base58 form
		raw, err = base58.Decode(w.PrivateKey)
		if err != nil || len(raw) != 64 {
			return nil, fmt.Errorf("%w: %s: secret key", ErrCorruptWallet, w.Name)
		}
	}
	key := solana.PrivateKey(raw)
	if key.PublicKey().String() != w.PublicKey {
		return nil, fmt.Errorf("%w: %s: secret key does not match public key", ErrCorruptWallet, w.Name)
	}
	return key, nil
}

// KeyStore is the only holder of private key material. The whole collection
// lives in memory and every mutation rewrites the backing file before it
// returns.
type KeyStore struct {
	path    string
	mu      sync.RWMutex
	wallets map[string]Wallet
	logger  zerolog.Logger
}

// Open loads the collection at path. A missing file yields an empty store.
func Open(path string, logger zerolog.Logger) (*KeyStore, error) {
	ks := &KeyStore{
		path:    path,
		wallets: make(map[string]Wallet),
		logger:  logger.With().Str("component", "keystore").Logger(),
	}
	if _, err := ks.Load(); err != nil {
		return nil, err
	}
	return ks, nil
}

// Load re-reads the backing file, replacing the in-memory collection.
func (ks *KeyStore) Load() (map[string]Wallet, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	wallets, err := readFile(ks.path)
	if err != nil {
		return nil, err
	}
	ks.wallets = wallets
	ks.logger.Info().Int("wallets", len(wallets)).Str("path", ks.path).Msg("wallets loaded")
	return copyWallets(wallets), nil
}

func readFile(path string) (map[string]Wallet, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]Wallet), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet file: %w", err)
	}
	wallets := make(map[string]Wallet)
	if len(b) == 0 {
		return wallets, nil
	}
	if err := json.Unmarshal(b, &wallets); err != nil {
		return nil, fmt.Errorf("parse wallet file %s: %w", path, err)
	}
	for name, w := range wallets {
		if w.Name == "" {
			w.Name = name
			wallets[name] = w
		}
	}
	return wallets, nil
}

// Create generates a keypair under name and persists the collection.
func (ks *KeyStore) Create(name string) (Wallet, error) {
	if name == "" {
		return Wallet{}, ErrInvalidName
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	// Another process may have written since Open; merge from disk first.
	onDisk, err := readFile(ks.path)
	if err != nil {
		return Wallet{}, err
	}
	for n, w := range onDisk {
		if _, ok := ks.wallets[n]; !ok {
			ks.wallets[n] = w
		}
	}
	if _, ok := ks.wallets[name]; ok {
		return Wallet{}, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}

	w := newWallet(name)
	ks.wallets[name] = w
	if err := ks.saveLocked(); err != nil {
		delete(ks.wallets, name)
		return Wallet{}, err
	}
	ks.logger.Info().Str("wallet", name).Str("address", w.PublicKey).Msg("wallet created")
	return w, nil
}

// Get returns the wallet registered under name.
func (ks *KeyStore) Get(name string) (Wallet, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	w, ok := ks.wallets[name]
	if !ok {
		return Wallet{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return w, nil
}

// List returns all wallets sorted by name.
func (ks *KeyStore) List() []Wallet {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	out := make([]Wallet, 0, len(ks.wallets))
	for _, w := range ks.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Save writes the full collection back to disk.
func (ks *KeyStore) Save() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.saveLocked()
}

func (ks *KeyStore) saveLocked() error {
	b, err := json.MarshalIndent(ks.wallets, "", "  ")
	if err != nil {
		return fmt.Errorf("encode wallets: %w", err)
	}
	if dir := filepath.Dir(ks.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create wallet dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(ks.path), ".wallets-*.json")
	if err != nil {
		return fmt.Errorf("write wallet file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write wallet file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync wallet file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close wallet file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod wallet file: %w", err)
	}
	if err := os.Rename(tmpName, ks.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace wallet file: %w", err)
	}
	return nil
}

func copyWallets(in map[string]Wallet) map[string]Wallet {
	out := make(map[string]Wallet, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

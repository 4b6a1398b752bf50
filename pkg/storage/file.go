package storage

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const fileStoreVersion = "1.0"

// fileDocument is the on-disk layout of a File store.
type fileDocument struct {
	Entries map[string]string `json:"entries"`
	Version string            `json:"version"`
}

// File persists entries as a single JSON document. When an encryption key is
// configured the document is sealed with XChaCha20-Poly1305.
type File struct {
	mu   sync.Mutex
	path string
	aead cipher.AEAD
}

// NewFile opens (or lazily creates) the store at path. An empty passphrase
// disables encryption.
func NewFile(path, passphrase string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("file storage path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	f := &File{path: path}
	if passphrase != "" {
		key, err := deriveKey(passphrase)
		if err != nil {
			return nil, err
		}
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("failed to init cipher: %w", err)
		}
		f.aead = aead
	}
	return f, nil
}

func deriveKey(passphrase string) ([]byte, error) {
	h := hkdf.New(sha256.New, []byte(passphrase), nil, []byte("snowball-storage"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("failed to derive storage key: %w", err)
	}
	return key, nil
}

func (f *File) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := doc.Entries[key]
	return v, ok, nil
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	doc.Entries[key] = value
	return f.save(doc)
}

func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Entries[key]; !ok {
		return nil
	}
	delete(doc.Entries, key)
	return f.save(doc)
}

func (f *File) load() (*fileDocument, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return &fileDocument{Entries: make(map[string]string), Version: fileStoreVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}

	if f.aead != nil {
		ns := f.aead.NonceSize()
		if len(data) < ns {
			return nil, fmt.Errorf("storage file too short")
		}
		data, err = f.aead.Open(nil, data[:ns], data[ns:], nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt storage file: %w", err)
		}
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse storage file: %w", err)
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]string)
	}
	if doc.Version == "" {
		doc.Version = fileStoreVersion
	}
	return &doc, nil
}

func (f *File) save(doc *fileDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage file: %w", err)
	}

	if f.aead != nil {
		nonce := make([]byte, f.aead.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return fmt.Errorf("failed to generate nonce: %w", err)
		}
		data = f.aead.Seal(nonce, nonce, data, nil)
	}

	// Replace atomically.
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write storage file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace storage file: %w", err)
	}
	return nil
}

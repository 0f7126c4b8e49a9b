// Package securefile reads and writes the small JSON state files kept by the
// dApp core: the preference store and relay sessions. Writes are atomic; a
// sealed variant encrypts the document with a passphrase (Argon2id +
// XChaCha20-Poly1305).
package securefile

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/quantumauth-io/quantum-dapp-core/internal/constants"
)

// ErrSealBroken is returned when a sealed file cannot be opened, either
// because the passphrase is wrong or the file was modified.
var ErrSealBroken = errors.New("securefile: wrong passphrase or corrupted file")

// envelope is the on-disk form of a sealed document.
type envelope struct {
	Version int    `json:"version"`
	Time    uint32 `json:"argon_time"`
	Memory  uint32 `json:"argon_memory_kib"`
	Threads uint8  `json:"argon_threads"`
	Salt    string `json:"salt"`
	Nonce   string `json:"nonce"`
	Sealed  string `json:"sealed"`
}

const (
	argonTime    = 2
	argonMemory  = 64 * 1024
	argonThreads = 1
	keyLen       = chacha20poly1305.KeySize
)

// WriteJSON marshals v and atomically replaces path, creating parent
// directories as needed.
func WriteJSON[T any](path string, v T) error {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirectoryPerm); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return AtomicWriteFile(path, b, constants.FilePerm)
}

// ReadJSON reads path into a T. A missing file surfaces os.ErrNotExist.
func ReadJSON[T any](path string) (T, error) {
	var out T
	b, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read file: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("unmarshal json: %w", err)
	}
	return out, nil
}

// WriteSealedJSON is WriteJSON with the document encrypted under passphrase.
// The path is bound as associated data so a sealed file cannot be moved.
func WriteSealedJSON[T any](path string, v T, passphrase []byte) error {
	if len(passphrase) == 0 {
		return errors.New("securefile: empty passphrase")
	}
	if err := os.MkdirAll(filepath.Dir(path), constants.DirectoryPerm); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("rand salt: %w", err)
	}
	aead, err := chacha20poly1305.NewX(argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, keyLen))
	if err != nil {
		return fmt.Errorf("aead: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("rand nonce: %w", err)
	}

	env := envelope{
		Version: constants.SchemaV1,
		Time:    argonTime,
		Memory:  argonMemory,
		Threads: argonThreads,
		Salt:    base64.StdEncoding.EncodeToString(salt),
		Nonce:   base64.StdEncoding.EncodeToString(nonce),
		Sealed:  base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plain, []byte(path))),
	}
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return AtomicWriteFile(path, b, constants.FilePerm)
}

// ReadSealedJSON opens a file written by WriteSealedJSON.
func ReadSealedJSON[T any](path string, passphrase []byte) (T, error) {
	var out T
	b, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read file: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return out, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != constants.SchemaV1 {
		return out, fmt.Errorf("securefile: unsupported envelope version %d", env.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return out, fmt.Errorf("decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return out, fmt.Errorf("decode nonce: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Sealed)
	if err != nil {
		return out, fmt.Errorf("decode sealed: %w", err)
	}

	aead, err := chacha20poly1305.NewX(argon2.IDKey(passphrase, salt, env.Time, env.Memory, env.Threads, keyLen))
	if err != nil {
		return out, fmt.Errorf("aead: %w", err)
	}
	plain, err := aead.Open(nil, nonce, sealed, []byte(path))
	if err != nil {
		return out, ErrSealBroken
	}
	if err := json.Unmarshal(plain, &out); err != nil {
		return out, fmt.Errorf("unmarshal json: %w", err)
	}
	return out, nil
}

// AtomicWriteFile writes through a temp file and rename.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// StatePath returns where the application keeps filename: the first of
// ConfigPathCandidates.
func StatePath(filename string) (string, error) {
	paths, err := ConfigPathCandidates(constants.AppName, filename)
	if err != nil {
		return "", err
	}
	return paths[0], nil
}

// ConfigPathCandidates lists locations for filename in priority order:
// $SNAP_REAL_HOME/.config/<app>, $HOME/.config/<app>, then the OS user config
// dir. QD_ENV=local|develop adds a subfolder.
func ConfigPathCandidates(app, filename string) ([]string, error) {
	if app == "" || filename == "" {
		return nil, errors.New("securefile: app and filename are required")
	}
	envFolder, err := EnvFolder()
	if err != nil {
		return nil, err
	}

	var paths []string
	seen := map[string]bool{}
	add := func(dir string) {
		if envFolder != "" {
			dir = filepath.Join(dir, envFolder)
		}
		p := filepath.Join(dir, filename)
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	if realHome := os.Getenv("SNAP_REAL_HOME"); realHome != "" {
		add(filepath.Join(realHome, ".config", app))
	}
	if home := os.Getenv("HOME"); home != "" {
		add(filepath.Join(home, ".config", app))
	}
	if dir, err := os.UserConfigDir(); err == nil {
		add(filepath.Join(dir, app))
	} else if len(paths) == 0 {
		return nil, fmt.Errorf("UserConfigDir: %w", err)
	}
	return paths, nil
}

// EnvFolder maps QD_ENV to a subfolder name; production is "".
func EnvFolder() (string, error) {
	raw := strings.TrimSpace(os.Getenv("QD_ENV"))
	switch strings.ToLower(raw) {
	case "", "prod", "production":
		return "", nil
	case "local":
		return "local", nil
	case "dev", "develop", "development":
		return "develop", nil
	default:
		return "", fmt.Errorf("invalid QD_ENV %q (allowed: local, develop, empty)", raw)
	}
}

package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	uriScheme   = "qd"
	uriVersion  = "1"
	qrImageSize = 256
)

// Pairing is what the user needs to link a wallet: a URI to scan or open,
// the same URI as a PNG QR code, and a short code both sides display.
type Pairing struct {
	URI  string
	Code string
	QR   []byte
}

type PairingURI struct {
	Topic  string
	Bridge string
	Key    []byte
}

func (p PairingURI) String() string {
	q := url.Values{}
	q.Set("bridge", p.Bridge)
	q.Set("key", hex.EncodeToString(p.Key))
	return fmt.Sprintf("%s:%s@%s?%s", uriScheme, p.Topic, uriVersion, q.Encode())
}

// ParseURI reads a pairing URI as produced by PairingURI.String.
func ParseURI(raw string) (PairingURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return PairingURI{}, fmt.Errorf("relay: parse uri: %w", err)
	}
	if u.Scheme != uriScheme {
		return PairingURI{}, fmt.Errorf("relay: unexpected uri scheme %q", u.Scheme)
	}
	topic, version, ok := strings.Cut(u.Opaque, "@")
	if !ok || topic == "" || version != uriVersion {
		return PairingURI{}, fmt.Errorf("relay: malformed uri %q", raw)
	}
	q := u.Query()
	key, err := hex.DecodeString(q.Get("key"))
	if err != nil || len(key) != 32 {
		return PairingURI{}, fmt.Errorf("relay: uri key must be 32 hex bytes")
	}
	bridge := q.Get("bridge")
	if bridge == "" {
		return PairingURI{}, fmt.Errorf("relay: uri has no bridge")
	}
	return PairingURI{Topic: topic, Bridge: bridge, Key: key}, nil
}

func newPairing(p PairingURI) Pairing {
	uri := p.String()
	png, err := qrcode.Encode(uri, qrcode.Medium, qrImageSize)
	if err != nil {
		png = nil
	}
	return Pairing{URI: uri, Code: ConfirmationCode(p.Key, p.Topic), QR: png}
}

// ConfirmationCode derives the short code shown on both devices so the user
// can check they paired with the right peer.
func ConfirmationCode(key []byte, topic string) string {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0 O I 1
	const length = 8

	h := sha256.Sum256(append(append([]byte{}, key...), topic...))
	b := make([]byte, length)
	for i := range b {
		b[i] = alphabet[int(h[i])%len(alphabet)]
	}
	return string(b)
}

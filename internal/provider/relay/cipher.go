package relay

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var errOpen = errors.New("relay: cannot open payload")

type sealed struct {
	Data  string `json:"data"`
	Nonce string `json:"nonce"`
}

func newKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("relay: generate key: %w", err)
	}
	return key, nil
}

// seal encrypts msg for the bridge. The topic is bound as associated data so
// a payload replayed on another topic fails to open.
func seal(key []byte, topic string, msg rpcMessage) (string, error) {
	plain, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("relay: marshal message: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("relay: aead: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("relay: nonce: %w", err)
	}
	out, err := json.Marshal(sealed{
		Data:  hex.EncodeToString(aead.Seal(nil, nonce, plain, []byte(topic))),
		Nonce: hex.EncodeToString(nonce),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func open(key []byte, topic, payload string) (rpcMessage, error) {
	var msg rpcMessage
	var s sealed
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return msg, errOpen
	}
	nonce, err := hex.DecodeString(s.Nonce)
	if err != nil || len(nonce) != chacha20poly1305.NonceSizeX {
		return msg, errOpen
	}
	data, err := hex.DecodeString(s.Data)
	if err != nil {
		return msg, errOpen
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return msg, errOpen
	}
	plain, err := aead.Open(nil, nonce, data, []byte(topic))
	if err != nil {
		return msg, errOpen
	}
	if err := json.Unmarshal(plain, &msg); err != nil {
		return msg, fmt.Errorf("relay: decode message: %w", err)
	}
	return msg, nil
}

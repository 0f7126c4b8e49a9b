package relay

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/quantumauth-io/quantum-dapp-core/internal/constants"
	"github.com/quantumauth-io/quantum-dapp-core/internal/securefile"
)

// Session is everything needed to resume a paired wallet without a new QR
// handshake.
type Session struct {
	Version  int      `json:"version"`
	Bridge   string   `json:"bridge"`
	ClientID string   `json:"clientId"`
	PeerID   string   `json:"peerId"`
	Key      string   `json:"key"`
	ChainID  string   `json:"chainId"`
	Accounts []string `json:"accounts"`
}

func (s Session) key() ([]byte, error) {
	key, err := hex.DecodeString(s.Key)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("relay: session key is invalid")
	}
	return key, nil
}

// LoadSession returns the stored session, or ok=false when none exists.
// A passphrase selects the sealed file format.
func LoadSession(path string, passphrase []byte) (Session, bool, error) {
	var (
		s   Session
		err error
	)
	if len(passphrase) > 0 {
		s, err = securefile.ReadSealedJSON[Session](path, passphrase)
	} else {
		s, err = securefile.ReadJSON[Session](path)
	}
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	if s.Version != constants.SchemaV1 || s.ClientID == "" || s.PeerID == "" {
		return Session{}, false, fmt.Errorf("relay: session file %s is incomplete", path)
	}
	return s, true, nil
}

func SaveSession(path string, s Session, passphrase []byte) error {
	s.Version = constants.SchemaV1
	if len(passphrase) > 0 {
		return securefile.WriteSealedJSON(path, s, passphrase)
	}
	return securefile.WriteJSON(path, s)
}

func RemoveSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

package abicodec

import (
	"bytes"
	"encoding/json"
	"fmt"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
)

type EntryType string

const (
	EntryFunction    EntryType = "function"
	EntryConstructor EntryType = "constructor"
	EntryFallback    EntryType = "fallback"
	EntryReceive     EntryType = "receive"
)

type StateMutability string

const (
	Pure       StateMutability = "pure"
	View       StateMutability = "view"
	NonPayable StateMutability = "nonpayable"
	Payable    StateMutability = "payable"
)

type Param struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type"`
}

// Interface is a single ABI entry. Values are declared once per contract
// method and never modified.
type Interface struct {
	Name            string          `json:"name,omitempty"`
	Type            EntryType       `json:"type"`
	Inputs          []Param         `json:"inputs"`
	Outputs         []Param         `json:"outputs,omitempty"`
	StateMutability StateMutability `json:"stateMutability"`
}

// ReadOnly reports whether calling the entry cannot change chain state.
func (i Interface) ReadOnly() bool {
	return i.StateMutability == Pure || i.StateMutability == View
}

// ParseInterfaces validates an ABI JSON document and returns its callable
// entries (functions, constructor, fallback, receive). Events and errors are
// skipped.
func ParseInterfaces(abiJSON []byte) ([]Interface, error) {
	if _, err := ethabi.JSON(bytes.NewReader(abiJSON)); err != nil {
		return nil, fmt.Errorf("abicodec: invalid abi: %w", err)
	}

	var raw []Interface
	if err := json.Unmarshal(abiJSON, &raw); err != nil {
		return nil, fmt.Errorf("abicodec: decode abi: %w", err)
	}

	out := make([]Interface, 0, len(raw))
	for _, entry := range raw {
		switch entry.Type {
		case EntryFunction, EntryConstructor, EntryFallback, EntryReceive:
		case "":
			// solidity < 0.5 output omits the type for functions
			entry.Type = EntryFunction
		default:
			continue
		}
		if entry.StateMutability == "" {
			entry.StateMutability = NonPayable
		}
		out = append(out, entry)
	}
	return out, nil
}

// FromMethod converts a go-ethereum method description.
func FromMethod(m ethabi.Method) Interface {
	iface := Interface{
		Name:            m.RawName,
		Type:            EntryFunction,
		StateMutability: StateMutability(m.StateMutability),
	}
	switch m.Type {
	case ethabi.Constructor:
		iface.Type = EntryConstructor
	case ethabi.Fallback:
		iface.Type = EntryFallback
	case ethabi.Receive:
		iface.Type = EntryReceive
	}
	for _, in := range m.Inputs {
		iface.Inputs = append(iface.Inputs, Param{Name: in.Name, Type: in.Type.String()})
	}
	for _, out := range m.Outputs {
		iface.Outputs = append(iface.Outputs, Param{Name: out.Name, Type: out.Type.String()})
	}
	return iface
}

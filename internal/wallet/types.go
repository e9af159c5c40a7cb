package wallet

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/danmuck/walletlink/internal/protocol/envelope"
)

type Account struct {
	AccountID string `json:"accountId"`
	PublicKey string `json:"publicKey,omitempty"`
}

type SignInParams struct {
	ContractID  string   `json:"contractId,omitempty"`
	MethodNames []string `json:"methodNames,omitempty"`
}

// SignMessageParams is an off-chain message signing request. Nonce is
// usually 32 bytes and travels as an array of byte values.
type SignMessageParams struct {
	Message     string `json:"message"`
	Recipient   string `json:"recipient"`
	Nonce       []byte `json:"-"`
	CallbackURL string `json:"callbackUrl,omitempty"`
	State       string `json:"state,omitempty"`
}

type SignedMessage struct {
	AccountID string `json:"accountId"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	State     string `json:"state,omitempty"`
}

// Action is one transaction action in the wallet's own JSON shape. Values
// may hold *big.Int amounts; they reach the wire as decimal strings.
type Action map[string]any

type Transaction struct {
	SignerID   string   `json:"signerId,omitempty"`
	ReceiverID string   `json:"receiverId"`
	Actions    []Action `json:"actions"`
}

type SignAndSendTransactionsParams struct {
	Transactions []Transaction `json:"transactions"`
}

// toArgs turns a params struct into envelope args, keeping number text intact.
func toArgs(v any) (envelope.Args, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wallet: encode args: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	args := envelope.Args{}
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("wallet: encode args: %w", err)
	}
	return args, nil
}

func byteValues(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

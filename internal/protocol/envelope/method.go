package envelope

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownMethod = errors.New("envelope: unknown method")

// Method names one remote operation. The set only grows with a protocol version bump.
type Method string

const (
	MethodSignIn                  Method = "sign_in"
	MethodSignOut                 Method = "sign_out"
	MethodSignAndSendTransaction  Method = "sign_and_send_transaction"
	MethodSignAndSendTransactions Method = "sign_and_send_transactions"
	MethodSignTransaction         Method = "sign_transaction"
	MethodSignDelegateAction      Method = "sign_delegate_action"
	MethodCreateSignedTransaction Method = "create_signed_transaction"
	MethodGetPublicKey            Method = "get_public_key"
	MethodSignMessage             Method = "sign_message"
	MethodPing                    Method = "ping"
)

var methods = []Method{
	MethodSignIn,
	MethodSignOut,
	MethodSignAndSendTransaction,
	MethodSignAndSendTransactions,
	MethodSignTransaction,
	MethodSignDelegateAction,
	MethodCreateSignedTransaction,
	MethodGetPublicKey,
	MethodSignMessage,
	MethodPing,
}

func Methods() []Method {
	out := make([]Method, len(methods))
	copy(out, methods)
	return out
}

func (m Method) Valid() bool {
	for _, known := range methods {
		if m == known {
			return true
		}
	}
	return false
}

func (m Method) String() string {
	return string(m)
}

func ParseMethod(raw string) (Method, error) {
	m := Method(strings.TrimSpace(raw))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, raw)
	}
	return m, nil
}

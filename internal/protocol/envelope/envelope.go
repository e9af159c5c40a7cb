package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// DefaultSource tags every outbound envelope so the host can tell selector traffic apart.
const DefaultSource = "meteor-wallet-app-selector"

// maxSafeInteger is the largest integer a JSON consumer backed by float64 keeps exact.
const maxSafeInteger = 1<<53 - 1

var (
	ErrInvalidEnvelope = errors.New("envelope: invalid envelope")

	maxSafe = big.NewInt(maxSafeInteger)
	minSafe = big.NewInt(-maxSafeInteger)
)

// Args is the open argument mapping of one invocation.
type Args map[string]any

// Envelope is the outbound request shape.
type Envelope struct {
	Method Method `json:"method"`
	Args   Args   `json:"args"`
	Nonce  string `json:"nonce"`
	Source string `json:"source"`
	Href   string `json:"href"`
}

func (e Envelope) Validate() error {
	if !e.Method.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidEnvelope, ErrUnknownMethod, e.Method)
	}
	if strings.TrimSpace(e.Nonce) == "" {
		return fmt.Errorf("%w: missing nonce", ErrInvalidEnvelope)
	}
	if strings.TrimSpace(e.Source) == "" {
		return fmt.Errorf("%w: missing source", ErrInvalidEnvelope)
	}
	return nil
}

// Encode serializes e. Big integers and integers outside the float64-exact
// range are written as decimal strings instead of failing or losing precision.
func Encode(e Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	wire := e
	wire.Args = normalizeArgs(e.Args)
	first, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode: %w", err)
	}

	// Values hidden inside structs or json.Marshaler types only show up as
	// number literals after the first pass.
	dec := json.NewDecoder(bytes.NewReader(first))
	dec.UseNumber()
	var generic map[string]any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("envelope: encode: %w", err)
	}
	out, err := json.Marshal(degradeNumbers(generic))
	if err != nil {
		return nil, fmt.Errorf("envelope: encode: %w", err)
	}
	return out, nil
}

// Decode parses an outbound envelope the way the remote endpoint sees it.
// Numbers are kept as json.Number.
func Decode(raw []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.Args == nil {
		env.Args = Args{}
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func normalizeArgs(args Args) Args {
	out := make(Args, len(args))
	for k, v := range args {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil
		}
		return x.String()
	case big.Int:
		return x.String()
	case int64:
		if x > maxSafeInteger || x < -maxSafeInteger {
			return strconv.FormatInt(x, 10)
		}
		return x
	case int:
		if int64(x) > maxSafeInteger || int64(x) < -maxSafeInteger {
			return strconv.Itoa(x)
		}
		return x
	case uint64:
		if x > maxSafeInteger {
			return strconv.FormatUint(x, 10)
		}
		return x
	case uint:
		if uint64(x) > maxSafeInteger {
			return strconv.FormatUint(uint64(x), 10)
		}
		return x
	case float64:
		return floatLiteral(x)
	case float32:
		return floatLiteral(float64(x))
	case Args:
		return normalizeArgs(x)
	case map[string]any:
		return map[string]any(normalizeArgs(Args(x)))
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

// floatLiteral keeps floats numeric. encoding/json prints integral floats
// below 1e21 without an exponent, which the second pass would read as an
// unsafe integer; the shortest 'g' form carries an exponent instead.
func floatLiteral(x float64) any {
	if math.IsNaN(x) || math.IsInf(x, 0) || math.Abs(x) <= maxSafeInteger {
		return x
	}
	return json.Number(strconv.FormatFloat(x, 'g', -1, 64))
}

func degradeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if isUnsafeInteger(x) {
			return x.String()
		}
		return x
	case map[string]any:
		for k, item := range x {
			x[k] = degradeNumbers(item)
		}
		return x
	case []any:
		for i, item := range x {
			x[i] = degradeNumbers(item)
		}
		return x
	default:
		return v
	}
}

func isUnsafeInteger(n json.Number) bool {
	s := n.String()
	if strings.ContainsAny(s, ".eE") {
		return false
	}
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return false
	}
	return i.Cmp(maxSafe) > 0 || i.Cmp(minSafe) < 0
}

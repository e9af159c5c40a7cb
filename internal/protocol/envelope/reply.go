package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Reply is a validated inbound protocol reply.
type Reply struct {
	Response json.RawMessage
	Nonce    string
	IsError  bool
}

// Message renders the payload as an error message: strings verbatim,
// anything else as its JSON text.
func (r Reply) Message() string {
	var s string
	if err := json.Unmarshal(r.Response, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, r.Response); err != nil {
		return string(r.Response)
	}
	return buf.String()
}

// Inbound is one message read from the shared inbound channel, classified once.
type Inbound struct {
	Raw     json.RawMessage
	Reply   Reply
	IsReply bool
}

// ParseInbound classifies raw. Only a JSON object with a truthy response and
// a string nonce is a reply; everything else is carried as-is and ignored by
// the correlator.
func ParseInbound(raw []byte) Inbound {
	in := Inbound{Raw: append(json.RawMessage(nil), raw...)}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return in
	}
	response, ok := fields["response"]
	if !ok || !Truthy(response) {
		return in
	}
	var nonce string
	if err := json.Unmarshal(fields["nonce"], &nonce); err != nil || nonce == "" {
		return in
	}
	in.Reply = Reply{
		Response: response,
		Nonce:    nonce,
		IsError:  Truthy(fields["isError"]),
	}
	in.IsReply = true
	return in
}

// Truthy applies script truthiness to a JSON value: null, false, 0 and ""
// are falsy, as is an absent value.
func Truthy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return false
	}
	switch v[0] {
	case 'n':
		return false
	case 'f':
		return false
	case 't', '{', '[':
		return true
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return false
		}
		return s != ""
	default:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return false
		}
		return f != 0
	}
}

type wireReply struct {
	Response json.RawMessage `json:"response"`
	Nonce    string          `json:"nonce"`
	IsError  bool            `json:"isError,omitempty"`
}

// EncodeReply builds the host-side reply for nonce. Used by host simulators and tests.
func EncodeReply(nonce string, response any, isError bool) ([]byte, error) {
	payload, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode reply: %w", err)
	}
	return json.Marshal(wireReply{Response: payload, Nonce: nonce, IsError: isError})
}

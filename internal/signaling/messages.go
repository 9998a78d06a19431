package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wilsonzlin/aero/proxy/presence-signaling-relay/internal/presence"
)

type MessageType string

const (
	MessageTypeRegister    MessageType = "user:register"
	MessageTypeCallRequest MessageType = "call:request"
	MessageTypeCallEnd     MessageType = "call:end"

	MessageTypeUsersUpdate  MessageType = "users:update"
	MessageTypeCallIncoming MessageType = "call:incoming"
	MessageTypeCallEnded    MessageType = "call:ended"
	MessageTypeError        MessageType = "error"
)

var ErrInvalidMessage = errors.New("invalid signaling message")

// InboundMessage is the union of all client-to-server events. Fields that do
// not apply to Type are ignored.
type InboundMessage struct {
	Type     MessageType `json:"type"`
	PeerID   looseString `json:"peerId"`
	Username looseString `json:"username"`
	To       looseString `json:"to"`
	From     looseString `json:"from"`
}

// looseString decodes any JSON scalar into its string form. Missing fields,
// null, objects and arrays become "", so a malformed field never rejects the
// whole event.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		*s = ""
		return nil
	}
	switch b[0] {
	case '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
	case 'n', '{', '[':
		*s = ""
	default:
		// Numbers and booleans keep their literal text.
		*s = looseString(b)
	}
	return nil
}

// ParseInboundMessage decodes one text frame. Only a frame that is not a JSON
// object is an error; an object with an unknown or missing type decodes
// successfully and is ignored by the dispatcher.
func ParseInboundMessage(data []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return msg, nil
}

type usersUpdateMessage struct {
	Type  MessageType     `json:"type"`
	Users []presence.Peer `json:"users"`
}

type callIncomingMessage struct {
	Type   MessageType `json:"type"`
	From   string      `json:"from"`
	Caller *string     `json:"caller,omitempty"`
}

type callEndedMessage struct {
	Type MessageType `json:"type"`
}

type errorMessage struct {
	Type    MessageType `json:"type"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

// Outbound frames are encoded once and shared by every recipient.

func encodeUsersUpdate(peers []presence.Peer) []byte {
	if peers == nil {
		peers = []presence.Peer{}
	}
	return mustMarshal(usersUpdateMessage{Type: MessageTypeUsersUpdate, Users: peers})
}

func encodeCallIncoming(from string, caller *string) []byte {
	return mustMarshal(callIncomingMessage{Type: MessageTypeCallIncoming, From: from, Caller: caller})
}

func encodeCallEnded() []byte {
	return mustMarshal(callEndedMessage{Type: MessageTypeCallEnded})
}

func encodeError(code, message string) []byte {
	return mustMarshal(errorMessage{Type: MessageTypeError, Code: code, Message: message})
}

// mustMarshal is only used with the fixed message structs above, which
// cannot fail to encode.
func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("signaling: encode %T: %v", v, err))
	}
	return b
}

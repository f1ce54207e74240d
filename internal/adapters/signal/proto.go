package signal

import "github.com/goccy/go-json"

// Relay protocol message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePublish     = "publish"
	TypeMessage     = "message"
	TypeError       = "error"
	TypePing        = "ping"
	TypePong        = "pong"
)

// RelayMessage is the envelope spoken between side-channel clients and the
// relay. Data carries one side-channel frame verbatim.
type RelayMessage struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

package transport

import (
	"bufio"
	"fmt"

	json "github.com/goccy/go-json"
)

// handshakeFrame is the first frame a TCP client must send: an API key
// to authenticate the connection (spec §6 — "connections are
// authenticated by API key in a handshake frame").
type handshakeFrame struct {
	APIKey string `json:"api_key"`
}

// MaxBadHandshakeAttempts is the number of failed handshake attempts
// tolerated before the connection is closed (spec §6: "closed after 3
// bad attempts").
const MaxBadHandshakeAttempts = 3

// KeyValidator validates an API key presented during the TCP handshake.
type KeyValidator func(apiKey string) bool

// Authenticate performs the TCP handshake: it reads handshake frames
// until one validates, or the bad-attempt budget is exhausted, in which
// case it returns an error and the caller must close the connection.
//
// It takes the connection's own buffered reader (rather than the raw
// net.Conn) so the caller can keep reading from the same reader for the
// message loop afterward — a fresh bufio.Reader would silently discard
// any bytes the client pipelined past the handshake frame.
func Authenticate(reader *bufio.Reader, maxBodySize int, validate KeyValidator) error {
	for attempt := 0; attempt < MaxBadHandshakeAttempts; attempt++ {
		raw, err := ReadMessage(reader, maxBodySize)
		if err != nil {
			return fmt.Errorf("handshake read: %w", err)
		}
		var hs handshakeFrame
		if jsonErr := json.Unmarshal(raw, &hs); jsonErr == nil && validate(hs.APIKey) {
			return nil
		}
	}
	return fmt.Errorf("handshake failed after %d attempts", MaxBadHandshakeAttempts)
}

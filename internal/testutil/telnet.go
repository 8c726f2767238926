package testutil

import (
	"bytes"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/cory-johannsen/fibula/internal/frontend/telnet"
)

// TelnetClient is a minimal Telnet client for integration tests. It drops
// IAC negotiation and ANSI colors from what it reads.
type TelnetClient struct {
	t       *testing.T
	conn    net.Conn
	pending bytes.Buffer
}

// NewTelnetClient dials addr and closes the connection when the test ends.
//
// Postcondition: Returns a connected client or fails the test.
func NewTelnetClient(t *testing.T, addr string) *TelnetClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &TelnetClient{t: t, conn: conn}
}

// ReadUntil reads until the plain text received contains substr and returns
// everything up to and including the match. Text after the match is kept for
// the next call.
func (c *TelnetClient) ReadUntil(substr string, timeout time.Duration) string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	tmp := make([]byte, 1024)
	for {
		text := c.pending.String()
		if i := strings.Index(text, substr); i >= 0 {
			c.pending.Reset()
			c.pending.WriteString(text[i+len(substr):])
			return text[:i+len(substr)]
		}
		n, err := c.conn.Read(tmp)
		if n > 0 {
			c.pending.WriteString(telnet.StripANSI(string(dropIAC(tmp[:n]))))
		}
		if err != nil {
			c.t.Fatalf("reading until %q: got %q: %v", substr, c.pending.String(), err)
		}
	}
}

// Send writes text and a CRLF.
func (c *TelnetClient) Send(text string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", text); err != nil {
		c.t.Fatalf("sending %q: %v", text, err)
	}
}

// Close closes the connection.
func (c *TelnetClient) Close() {
	_ = c.conn.Close()
}

// dropIAC removes three-byte option negotiations. The server never sends
// sub-negotiation.
func dropIAC(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		if p[i] == telnet.IAC && i+2 < len(p) {
			i += 2
			continue
		}
		out = append(out, p[i])
	}
	return out
}

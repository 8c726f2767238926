package telnet

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// pipeConn returns a Conn over one end of an in-memory pipe and the client end.
func pipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return NewConn(server, time.Second, time.Second), client
}

func send(t *testing.T, client net.Conn, data []byte) {
	t.Helper()
	go func() { _, _ = client.Write(data) }()
}

func TestReadLine_Terminators(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"crlf", "look\r\nwho\r\n", []string{"look", "who"}},
		{"lf", "look\nwho\n", []string{"look", "who"}},
		{"cr nul", "look\r\x00who\r\x00", []string{"look", "who"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, client := pipeConn(t)
			send(t, client, []byte(tt.input))
			for _, want := range tt.want {
				got, err := conn.ReadLine()
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestReadLine_StripsNegotiationAndControls(t *testing.T) {
	conn, client := pipeConn(t)
	input := []byte{IAC, DO, OptLinemode, 'h', 0x07, 'i', IAC, SB, 24, 0, 'x', IAC, SE, '\t', '!', 127, IAC, NOP, '\r', '\n'}
	send(t, client, input)

	got, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "hi\t!", got)
}

func TestReadLine_TruncatesLongLines(t *testing.T) {
	conn, client := pipeConn(t)
	send(t, client, []byte(strings.Repeat("a", MaxLineLength+100)+"\n"))

	got, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Len(t, got, MaxLineLength)
}

func TestReadLine_EOF(t *testing.T) {
	conn, client := pipeConn(t)
	go func() {
		_, _ = client.Write([]byte("partial"))
		_ = client.Close()
	}()
	got, err := conn.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "partial", got)
}

func TestWriteLine_TranslatesNewlines(t *testing.T) {
	conn, client := pipeConn(t)
	go func() { _ = conn.WriteLine("one\ntwo\r\nthree") }()

	buf := make([]byte, 64)
	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	n, err := io.ReadAtLeast(client, buf, len("one\r\ntwo\r\nthree\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "one\r\ntwo\r\nthree\r\n", string(buf[:n]))
}

func TestReadPassword_TogglesEcho(t *testing.T) {
	conn, client := pipeConn(t)
	result := make(chan string, 1)
	go func() {
		line, _ := conn.ReadPassword()
		result <- line
	}()

	_ = client.SetDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 3)
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{IAC, WILL, OptEcho}, buf)

	go func() { _, _ = client.Write([]byte("secret\r\n")) }()
	after := make([]byte, 5)
	_, err = io.ReadFull(client, after)
	require.NoError(t, err)
	assert.Equal(t, []byte{IAC, WONT, OptEcho, '\r', '\n'}, after)
	assert.Equal(t, "secret", <-result)
}

func TestClose_RejectsLaterWrites(t *testing.T) {
	conn, _ := pipeConn(t)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.WriteLine("late"), net.ErrClosed)
}

func TestProperty_ReadLine_PlainTextRoundTrips(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.StringMatching(`[ -~]{0,80}`).Draw(rt, "text")
		server, client := net.Pipe()
		defer server.Close()
		defer client.Close()
		conn := NewConn(server, time.Second, time.Second)
		go func() { _, _ = client.Write([]byte(text + "\r\n")) }()
		got, err := conn.ReadLine()
		if err != nil {
			rt.Fatalf("ReadLine: %v", err)
		}
		if got != text {
			rt.Fatalf("got %q, want %q", got, text)
		}
	})
}

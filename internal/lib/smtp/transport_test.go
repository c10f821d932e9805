package smtp

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ocr-gateway/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeServer отвечает на EHLO без расширения STARTTLS.
func fakeServer(t *testing.T) (host, port string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		_, _ = conn.Write([]byte("220 localhost ESMTP\r\n"))
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			switch {
			case strings.HasPrefix(line, "EHLO"):
				_, _ = conn.Write([]byte("250-localhost\r\n250 8BITMIME\r\n"))
			case strings.HasPrefix(line, "QUIT"):
				_, _ = conn.Write([]byte("221 bye\r\n"))
				return
			default:
				_, _ = conn.Write([]byte("502 not implemented\r\n"))
			}
		}
	}()

	host, port, err = net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return host, port
}

func TestTransport_Enabled(t *testing.T) {
	assert.False(t, NewTransport(config.SMTP{}, discardLogger()).Enabled())
	assert.True(t, NewTransport(config.SMTP{Host: "smtp.example.com"}, discardLogger()).Enabled())
}

func TestTransport_GetSMTPUser(t *testing.T) {
	tr := NewTransport(config.SMTP{User: "noreply@example.com"}, discardLogger())
	assert.Equal(t, "noreply@example.com", tr.GetSMTPUser())
}

func TestTransport_Connect_NoStartTLS(t *testing.T) {
	host, port := fakeServer(t)
	tr := NewTransport(config.SMTP{Host: host, Port: port}, discardLogger())

	client, err := tr.Connect()
	assert.Nil(t, client)
	assert.ErrorIs(t, err, ErrNoStartTLS)
}

func TestTransport_Connect_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	_ = ln.Close()

	tr := NewTransport(config.SMTP{Host: host, Port: port}, discardLogger())
	_, err = tr.Connect()
	assert.Error(t, err)
}

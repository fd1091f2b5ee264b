// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/poolstat/internal/config"
	"github.com/Thermoquad/poolstat/pkg/bus"
	"github.com/Thermoquad/poolstat/pkg/equipment"
)

// Both adapters carry raw bus bytes in each direction, so either one can be
// bound to a bus.
var (
	_ bus.Transport = (*SerialConnection)(nil)
	_ bus.Transport = (*WebSocketConnection)(nil)
)

// SerialConnection is a local RS-485 adapter, usually a USB dongle wired to
// the equipment bus.
type SerialConnection struct {
	port serial.Port
}

// Read returns whatever bytes the adapter has buffered.
func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

// Write transmits a whole frame.
func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// Close releases the port. A pending Read returns with an error.
func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// ErrConnectionClosed is returned by reads after the WebSocket bridge hung up.
var ErrConnectionClosed = errors.New("websocket connection closed")

// ErrNoTransport is returned when neither a port, URL nor TCP address is set.
var ErrNoTransport = errors.New("one of --port, --tcp or --url must be specified")

// WebSocketConnection is a remote RS-485 bridge that forwards bus bytes as
// binary WebSocket messages. Read turns the message stream back into a byte
// stream; a message larger than the caller's buffer is handed out over
// several reads.
type WebSocketConnection struct {
	conn    *websocket.Conn
	pending []byte
	closed  bool
}

// Read returns buffered message bytes first, then blocks for the next
// binary message. Text messages (bridge status chatter) are skipped.
func (w *WebSocketConnection) Read(p []byte) (int, error) {
	for len(w.pending) == 0 {
		if w.closed {
			return 0, ErrConnectionClosed
		}
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}
		if kind == websocket.BinaryMessage {
			w.pending = data
		}
	}

	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

// Write sends p as one binary message, so a frame is never split between
// messages.
func (w *WebSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close drops the WebSocket. A pending Read returns with an error.
func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// OpenSerialConnection opens the RS-485 adapter at 8N1.
func OpenSerialConnection(portName string, baudRate int) (bus.Transport, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenTCPConnection connects to a raw RS-485 to TCP bridge. The net.Conn is
// used as is; such bridges add no framing of their own.
func OpenTCPConnection(ctx context.Context, addr string, timeout time.Duration) (bus.Transport, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return conn, nil
}

// OpenWebSocketConnection dials a WebSocket bridge, sending HTTP Basic auth
// when both username and password are set. timeout bounds the handshake.
func OpenWebSocketConnection(ctx context.Context, wsURL, username, password string, skipSSLVerify bool, timeout time.Duration) (bus.Transport, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword returns POOLSTAT_PASSWORD, or prompts on the terminal without
// echo. Piped input is read as a single line.
func GetPassword() (string, error) {
	if pw := os.Getenv("POOLSTAT_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// not a terminal
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// describeTransport names the configured transport for status output.
func describeTransport(cfg config.TransportConfig) string {
	switch {
	case cfg.URL != "":
		return fmt.Sprintf("WebSocket: %s", cfg.URL)
	case cfg.TCP != "":
		return fmt.Sprintf("TCP: %s", cfg.TCP)
	case cfg.Port != "":
		return fmt.Sprintf("Serial: %s @ %d baud", cfg.Port, cfg.Baud)
	}
	return "none"
}

// transportDialer returns a dialer for the configured transport. The
// WebSocket password is resolved once, up front, so reconnects never prompt.
func transportDialer(cfg config.TransportConfig) (equipment.Dialer, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	switch {
	case cfg.URL != "":
		password := ""
		if cfg.Username != "" {
			var err error
			if password, err = GetPassword(); err != nil {
				return nil, err
			}
		}
		return func(ctx context.Context) (bus.Transport, error) {
			return OpenWebSocketConnection(ctx, cfg.URL, cfg.Username, password, cfg.NoSSLVerify, timeout)
		}, nil
	case cfg.TCP != "":
		return func(ctx context.Context) (bus.Transport, error) {
			return OpenTCPConnection(ctx, cfg.TCP, timeout)
		}, nil
	case cfg.Port != "":
		return func(context.Context) (bus.Transport, error) {
			return OpenSerialConnection(cfg.Port, cfg.Baud)
		}, nil
	}
	return nil, ErrNoTransport
}

// OpenConnection opens the configured transport once.
func OpenConnection(cfg config.TransportConfig) (bus.Transport, string, error) {
	dial, err := transportDialer(cfg)
	if err != nil {
		return nil, "", err
	}
	t, err := dial(context.Background())
	if err != nil {
		return nil, "", err
	}
	return t, describeTransport(cfg), nil
}

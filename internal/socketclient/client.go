package socketclient

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codefionn/chatd/internal/consts"
)

// ServerError is a reply the server marked as a failure, or a reply that
// does not fit the step of the exchange it arrived in.
type ServerError struct {
	Reply string
}

func (e *ServerError) Error() string {
	return "server replied: " + e.Reply
}

// ErrClosed is returned by calls on a closed Client.
var ErrClosed = errors.New("client is closed")

// Config holds client configuration
type Config struct {
	// Addr is the server's host:port
	Addr string
	// ConnectTimeout bounds dialing and the greeting
	ConnectTimeout time.Duration
	// RequestTimeout bounds the wait for the first line of a reply
	RequestTimeout time.Duration
	// ReplyIdle ends a multi-line reply once no further line arrives within it
	ReplyIdle time.Duration
	// WriteTimeout bounds each write
	WriteTimeout time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:           "127.0.0.1:7002",
		ConnectTimeout: consts.Timeout10Seconds,
		RequestTimeout: consts.Timeout2Minutes,
		ReplyIdle:      200 * time.Millisecond,
		WriteTimeout:   consts.Timeout60Seconds,
	}
}

// Client is a synchronous connection to a chatd server. Calls are
// serialized; the protocol has no request ids.
type Client struct {
	config *Config

	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	pending string
	closed  bool
}

// Dial connects to addr with the default configuration.
func Dial(ctx context.Context, addr string) (*Client, error) {
	config := DefaultConfig()
	config.Addr = addr
	return DialWithConfig(ctx, config)
}

// DialWithConfig connects and consumes the greeting.
func DialWithConfig(ctx context.Context, config *Config) (*Client, error) {
	if config.Addr == "" {
		return nil, errors.New("server address is required")
	}

	dialer := net.Dialer{Timeout: config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", config.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Addr, err)
	}

	c := &Client{
		config: config,
		conn:   conn,
		reader: bufio.NewReaderSize(conn, consts.BufferSize64KB),
	}

	// Welcome line plus the empty line after it.
	for i := 0; i < 2; i++ {
		if _, err := c.readLine(ctx, config.ConnectTimeout); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to read greeting: %w", err)
		}
	}
	return c, nil
}

// Command sends one line and returns the complete reply without its final
// newline. Lines that produce no reply (blank ones) are rejected.
func (c *Client) Command(ctx context.Context, line string) (string, error) {
	if strings.TrimSpace(line) == "" {
		return "", errors.New("empty command")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, line); err != nil {
		return "", err
	}
	return c.readReply(ctx)
}

// Login authenticates the connection.
func (c *Client) Login(ctx context.Context, username, password string) error {
	reply, err := c.Command(ctx, "login "+username+" "+password)
	if err != nil {
		return err
	}
	return expectOK(reply)
}

// Upload stores data on the server under name and returns the server's
// confirmation.
func (c *Client) Upload(ctx context.Context, name string, data []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	steps := []struct {
		line   string
		prompt string
	}{
		{"upload", "Enter filename:"},
		{name, "Enter file size (bytes):"},
		{strconv.Itoa(len(data)), fmt.Sprintf("Ready to receive %d bytes (base64)", len(data))},
	}
	for _, step := range steps {
		if err := c.send(ctx, step.line); err != nil {
			return "", err
		}
		reply, err := c.readLine(ctx, c.config.RequestTimeout)
		if err != nil {
			return "", err
		}
		if reply != step.prompt {
			return "", &ServerError{Reply: reply}
		}
	}

	if err := c.send(ctx, base64.StdEncoding.EncodeToString(data)); err != nil {
		return "", err
	}
	reply, err := c.readLine(ctx, c.config.RequestTimeout)
	if err != nil {
		return "", err
	}
	return reply, expectOK(reply)
}

// Download fetches the shared file called name.
func (c *Client) Download(ctx context.Context, name string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, "download "+name); err != nil {
		return nil, err
	}
	status, err := c.readLine(ctx, c.config.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(status, "[OK] Sending ") {
		return nil, &ServerError{Reply: status}
	}

	encoded, err := c.readLine(ctx, c.config.RequestTimeout)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode file data: %w", err)
	}
	return data, nil
}

// Close sends quit and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.conn.SetWriteDeadline(time.Now().Add(consts.Timeout1Second))
	io.WriteString(c.conn, "quit\n")
	return c.conn.Close()
}

func (c *Client) send(ctx context.Context, line string) error {
	if c.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(deadline(ctx, c.config.WriteTimeout)); err != nil {
		return err
	}
	if _, err := io.WriteString(c.conn, line+"\n"); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	return nil
}

// readReply reads the first line with the request timeout and then keeps
// reading until the server stays quiet for ReplyIdle.
func (c *Client) readReply(ctx context.Context) (string, error) {
	first, err := c.readLine(ctx, c.config.RequestTimeout)
	if err != nil {
		return "", err
	}

	lines := []string{first}
	for {
		line, err := c.readLine(ctx, c.config.ReplyIdle)
		if err != nil {
			if isTimeout(err) && ctx.Err() == nil {
				return strings.Join(lines, "\n"), nil
			}
			return "", err
		}
		lines = append(lines, line)
	}
}

// readLine returns one line without its newline. Bytes read before a
// timeout are kept and prefixed to the next line.
func (c *Client) readLine(ctx context.Context, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := c.conn.SetReadDeadline(deadline(ctx, timeout)); err != nil {
		return "", err
	}

	part, err := c.reader.ReadString('\n')
	c.pending += part
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("server closed the connection: %w", err)
		}
		return "", err
	}

	line := strings.TrimRight(c.pending, "\r\n")
	c.pending = ""
	return line, nil
}

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

func expectOK(reply string) error {
	if strings.HasPrefix(reply, "[OK]") {
		return nil
	}
	return &ServerError{Reply: reply}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

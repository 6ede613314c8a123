package socketserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/codefionn/chatd/internal/consts"
)

const (
	// payloadTailSlack bounds how much of an overlong payload line is dropped.
	payloadTailSlack = consts.BufferSize64KB
	// payloadTailWait is how long to wait for the newline ending a payload.
	payloadTailWait = 100 * time.Millisecond
)

// Client drives one accepted connection: it reads lines and upload payloads
// from the socket, feeds them to the connection's Session and writes the
// replies back.
type Client struct {
	// Connection identifier
	ID string

	conn    net.Conn
	reader  *bufio.Reader
	session *Session

	uploadTimeout time.Duration
	writeTimeout  time.Duration

	stopOnce sync.Once
}

// NewClient creates a client for conn.
func NewClient(id string, conn net.Conn, session *Session, uploadTimeout time.Duration) *Client {
	return &Client{
		ID:            id,
		conn:          conn,
		reader:        bufio.NewReaderSize(conn, consts.BufferSize64KB),
		session:       session,
		uploadTimeout: uploadTimeout,
		writeTimeout:  consts.Timeout2Minutes,
	}
}

// Serve runs the connection until the peer quits or disconnects. A panic in
// a handler is recovered and only tears down this connection.
func (c *Client) Serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Client %s panicked: %v\n%s", c.ID, r, debug.Stack())
		}
		c.session.Disconnect()
		c.Stop()
	}()

	if err := c.write(Greeting); err != nil {
		log.Info("Client %s gone before greeting: %v", c.ID, err)
		return
	}

	for {
		line, err := c.reader.ReadString('\n')
		if err != nil && line == "" {
			c.logReadError(err)
			return
		}

		reply := c.session.Handle(ctx, trimLine(line))
		if !c.apply(ctx, reply) {
			return
		}
		if err != nil {
			// Final unterminated line was handled; the stream is done.
			c.logReadError(err)
			return
		}
	}
}

// apply writes reply and follows its directives. It returns false when the
// connection must end.
func (c *Client) apply(ctx context.Context, reply Reply) bool {
	for {
		if reply.Text != "" {
			if err := c.write(reply.Text + "\n"); err != nil {
				log.Info("Client %s write failed: %v", c.ID, err)
				return false
			}
		}
		if reply.Close {
			return false
		}
		if !reply.Payload {
			return true
		}

		data, err := c.readPayload(reply.PayloadLen)
		if err != nil && !isTimeout(err) {
			c.logReadError(err)
			return false
		}
		reply = c.session.HandlePayload(ctx, data, err)
	}
}

// readPayload reads exactly n bytes under the upload deadline, then drops
// the rest of the payload line.
func (c *Client) readPayload(n int) ([]byte, error) {
	var buf []byte
	if n > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.uploadTimeout)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
		buf = make([]byte, n)
		_, err := io.ReadFull(c.reader, buf)
		c.conn.SetReadDeadline(time.Time{})
		if err != nil {
			return nil, err
		}
	}
	c.discardLineTail()
	return buf, nil
}

// discardLineTail drops whatever follows the declared payload up to and
// including the end of its line, so surplus bytes are not taken for a
// command. At most payloadTailSlack bytes are dropped.
func (c *Client) discardLineTail() {
	if err := c.conn.SetReadDeadline(time.Now().Add(payloadTailWait)); err != nil {
		return
	}
	defer c.conn.SetReadDeadline(time.Time{})

	surplus := 0
	for i := 0; i < payloadTailSlack; i++ {
		b, err := c.reader.ReadByte()
		if err != nil || b == '\n' {
			break
		}
		if b != '\r' {
			surplus++
		}
	}
	if surplus > 0 {
		log.Warn("Client %s sent %d bytes past the declared payload", c.ID, surplus)
	}
}

func (c *Client) write(s string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	_, err := io.WriteString(c.conn, s)
	return err
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, io.EOF):
		log.Info("Client %s disconnected (EOF)", c.ID)
	case errors.Is(err, net.ErrClosed):
		log.Info("Client %s connection closed", c.ID)
	default:
		log.Warn("Error reading from client %s: %v", c.ID, err)
	}
}

// Stop closes the connection, which ends Serve. Safe to call more than once
// and from other goroutines.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		c.conn.Close()
	})
}

// trimLine strips the newline and any trailing carriage returns.
func trimLine(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimRight(line, "\r")
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

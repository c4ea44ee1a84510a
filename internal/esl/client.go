// Package esl implements a minimal inbound client for the FreeSWITCH
// event-socket command protocol: a line-oriented TCP exchange of MIME-style
// headers, optionally followed by a Content-Length body.
//
// Only the command surface callwatch needs is covered: authentication and
// blocking "api" calls. Event subscription is deliberately absent.
package esl

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// Client is one authenticated command-socket connection. Callers dial,
// issue commands, and close; connections are not pooled or reused across
// operations, so a dead switch is noticed on the next dial.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects and authenticates against an event socket.
func Dial(addr, password string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	c := &Client{conn: conn, r: bufio.NewReader(conn)}

	msg, err := c.readMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read auth request: %w", err)
	}
	if msg.headers["Content-Type"] != "auth/request" {
		conn.Close()
		return nil, fmt.Errorf("unexpected greeting %q", msg.headers["Content-Type"])
	}

	if err := c.send("auth " + password); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send auth: %w", err)
	}
	reply, err := c.readMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read auth reply: %w", err)
	}
	if !strings.HasPrefix(reply.headers["Reply-Text"], "+OK") {
		conn.Close()
		return nil, fmt.Errorf("auth rejected: %s", reply.headers["Reply-Text"])
	}

	return c, nil
}

// API runs a blocking api command and returns the response body.
func (c *Client) API(command string) (string, error) {
	if err := c.send("api " + command); err != nil {
		return "", fmt.Errorf("send %q: %w", command, err)
	}
	for {
		msg, err := c.readMessage()
		if err != nil {
			return "", fmt.Errorf("read response to %q: %w", command, err)
		}
		if msg.headers["Content-Type"] == "api/response" {
			return msg.body, nil
		}
		// Skip interleaved non-response messages (e.g. log events).
	}
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(line string) error {
	_, err := io.WriteString(c.conn, line+"\n\n")
	return err
}

type message struct {
	headers map[string]string
	body    string
}

func (c *Client) readMessage() (*message, error) {
	msg := &message{headers: make(map[string]string)}

	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		msg.headers[key] = strings.TrimSpace(value)
	}

	if cl := msg.headers["Content-Length"]; cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil {
			return nil, fmt.Errorf("bad Content-Length %q: %w", cl, err)
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(c.r, body); err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		msg.body = string(body)
	}

	return msg, nil
}

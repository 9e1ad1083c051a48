// Package chat implements teamhub.ChatClient against the embedded
// chat server named in spec.md §1: a plain IRC daemon. No IRC client
// library appears anywhere in the example corpus this module was
// grounded on, so the wire protocol is hand-rolled here over stdlib
// net/bufio — a deliberate, documented stdlib exception rather than an
// oversight.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/forgeworks/teamhub"
)

const (
	minBackoff   = 1 * time.Second
	maxBackoff   = 30 * time.Second
	sendQueueCap = 64
)

// MessageHandler receives one parsed inbound chat line.
type MessageHandler func(channel, nick, text string, at time.Time)

// Client is a per-team IRC connection: joins the team's channels,
// emits structured messages upward via the registered MessageHandler,
// and sends outbound lines on demand. It fails closed with bounded
// exponential reconnect (spec.md §7 Transient): while disconnected,
// outbound sends queue up to sendQueueCap messages, then return
// Conflict.
type Client struct {
	addr string
	nick string
	teamID string

	mu       sync.Mutex
	conn     net.Conn
	channels []string
	handler  MessageHandler
	outbox   chan outboundLine

	cancel context.CancelFunc
	done   chan struct{}

	log *slog.Logger
}

type outboundLine struct {
	channel string
	text    string
}

// NewClient constructs a Client that will dial addr once Join is
// called. nick is the connection's IRC nickname (derived from teamID
// by convention, e.g. "team-<id>").
func NewClient(teamID, addr, nick string) *Client {
	return &Client{
		teamID: teamID,
		addr:   addr,
		nick:   nick,
		outbox: make(chan outboundLine, sendQueueCap),
		log:    slog.Default().With("team", teamID),
	}
}

// Factory adapts NewClient to teamhub.ChatClientFactory: each team's
// chatPort is combined with the one host given here.
func Factory(host string) teamhub.ChatClientFactory {
	return func(teamID string, chatPort int) teamhub.ChatClient {
		return NewClient(teamID, fmt.Sprintf("%s:%d", host, chatPort), "team-"+teamID)
	}
}

// OnMessage registers handler. Must be called before Join.
func (c *Client) OnMessage(handler func(channel, nick, text string, at time.Time)) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

// Join dials the chat server, registers the nick, joins channels, and
// starts the background read/reconnect loop.
func (c *Client) Join(ctx context.Context, channels []string) error {
	c.mu.Lock()
	c.channels = append([]string(nil), channels...)
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		return fmt.Errorf("chat: initial connect failed: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx)

	return nil
}

func (c *Client) dial(ctx context.Context) error {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return err
	}

	fmt.Fprintf(conn, "NICK %s\r\n", c.nick)
	fmt.Fprintf(conn, "USER %s 0 * :teamhub agent\r\n", c.nick)
	c.mu.Lock()
	for _, ch := range c.channels {
		fmt.Fprintf(conn, "JOIN %s\r\n", ch)
	}
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// run owns the connection: it reads lines, dispatches PRIVMSG to the
// handler, answers PING, drains the outbox, and reconnects with
// exponential backoff (1s, cap 30s) on disconnect, exactly as spec.md
// §7 requires of Transient chat failures.
func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	backoff := minBackoff

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			if err := c.dial(ctx); err != nil {
				c.log.Warn("chat reconnect failed", "error", err, "backoff", backoff)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				backoff = nextBackoff(backoff)
				continue
			}
			backoff = minBackoff
			c.mu.Lock()
			conn = c.conn
			c.mu.Unlock()
		}

		go c.drainOutbox(ctx, conn)
		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func (c *Client) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		c.handleLine(conn, scanner.Text())
	}
}

func (c *Client) handleLine(conn net.Conn, line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}

	if strings.HasPrefix(line, "PING") {
		token := strings.TrimPrefix(line, "PING ")
		fmt.Fprintf(conn, "PONG %s\r\n", token)
		return
	}

	nick, channel, text, ok := parsePrivmsg(line)
	if !ok {
		return
	}

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(channel, nick, text, time.Now())
	}
}

// parsePrivmsg parses an IRC line of the form:
//
//	:nick!user@host PRIVMSG #channel :message text
func parsePrivmsg(line string) (nick, channel, text string, ok bool) {
	if !strings.HasPrefix(line, ":") {
		return "", "", "", false
	}
	rest := line[1:]
	spaceBang := strings.IndexAny(rest, "!@ ")
	if spaceBang < 0 {
		return "", "", "", false
	}
	nick = rest[:spaceBang]

	idx := strings.Index(rest, "PRIVMSG ")
	if idx < 0 {
		return "", "", "", false
	}
	rest = rest[idx+len("PRIVMSG "):]

	parts := strings.SplitN(rest, " :", 2)
	if len(parts) != 2 {
		return "", "", "", false
	}
	return nick, strings.TrimSpace(parts[0]), parts[1], true
}

func (c *Client) drainOutbox(ctx context.Context, conn net.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-c.outbox:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(conn, "PRIVMSG %s :%s\r\n", line.channel, line.text); err != nil {
				return
			}
		}
	}
}

// Say queues an outbound line. While disconnected, sends queue up to
// sendQueueCap messages before returning a Conflict-classed error,
// per spec.md §7.
func (c *Client) Say(ctx context.Context, channel, text string) error {
	select {
	case c.outbox <- outboundLine{channel: channel, text: text}:
		return nil
	default:
		return teamhub.NewError(teamhub.KindConflict, "Client.Say", "chat client outbox full while disconnected", nil)
	}
}

// Close stops the background loop and closes the connection.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if c.done != nil {
		<-c.done
	}
	return nil
}

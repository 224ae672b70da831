// Package mailcheck finds unseen job-alert emails over IMAP.
package mailcheck

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
)

// Message is a matched alert email. It is never modified.
type Message struct {
	UID     imap.UID
	From    string
	Date    time.Time
	Subject string
	Body    string
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Mailbox  string
	Subjects []string      // OR-matched against Subject
	MarkSeen bool          // false fetches with BODY.PEEK
	Timeout  time.Duration // bounds the whole session

	TLS *tls.Config // nil verifies Host against the system roots
}

type Checker struct {
	cfg Config
}

func New(cfg Config) *Checker {
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Checker{cfg: cfg}
}

func (c *Checker) addr() string {
	if strings.Contains(c.cfg.Host, ":") {
		return c.cfg.Host
	}
	return fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
}

// Poll opens a session, collects matching unseen messages and always logs
// out before returning. Portal work for the matches happens afterwards, with
// the mail session already released.
func (c *Checker) Poll(ctx context.Context) ([]Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	log.Printf("[mail] login %s as %s", c.addr(), c.cfg.Username)
	tlsCfg := c.cfg.TLS
	if tlsCfg == nil {
		tlsCfg = tlsConfig(hostOnly(c.addr()))
	}
	client, err := dialAndLogin(ctx, c.addr(), c.cfg.Username, c.cfg.Password, tlsCfg)
	if err != nil {
		return nil, err
	}
	// Closing the connection is the only way to unblock a stalled command,
	// so the timeout and shutdown reach every step of the session.
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()
	defer logoutAndClose(ctx, client)

	if _, err := client.Select(c.cfg.Mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("imap select %q: %w", c.cfg.Mailbox, err)
	}

	searchData, err := client.UIDSearch(subjectCriteria(c.cfg.Subjects), nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap uid search: %w", err)
	}
	uids := searchData.AllUIDs()
	log.Printf("[mail] %d matching messages", len(uids))
	if len(uids) == 0 {
		return nil, nil
	}

	bodyText := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierText,
		Peek:      !c.cfg.MarkSeen,
	}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodyText},
	})
	defer func() { _ = fetchCmd.Close() }()

	out := make([]Message, 0, len(uids))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}
		buf, err := msgData.Collect()
		if err != nil {
			return nil, fmt.Errorf("imap fetch collect: %w", err)
		}

		m := Message{UID: buf.UID}
		if buf.Envelope != nil {
			m.Subject = decodeHeader(buf.Envelope.Subject)
			m.Date = buf.Envelope.Date
			m.From = joinAddrs(buf.Envelope.From)
		}
		if b := buf.FindBodySection(bodyText); b != nil {
			m.Body = string(b)
		}
		out = append(out, m)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("imap fetch close: %w", err)
	}
	return out, nil
}

func hostOnly(addr string) string {
	if i := strings.LastIndex(addr, ":"); i > 0 {
		return addr[:i]
	}
	return addr
}

func decodeHeader(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	dec := new(mime.WordDecoder)
	out, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}

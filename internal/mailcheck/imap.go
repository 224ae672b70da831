// internal/mailcheck/imap.go
package mailcheck

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// ErrAuth marks a rejected login (bad credentials, throttling). Callers treat
// it as recoverable.
var ErrAuth = errors.New("imap authentication failed")

func tlsConfig(host string) *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: host,
	}
}

// dialAndLogin connects over TLS and logs in.
func dialAndLogin(ctx context.Context, addr, username, password string, tlsCfg *tls.Config) (*imapclient.Client, error) {
	if addr == "" {
		return nil, errors.New("imap addr is required")
	}
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: imap username/password is required", ErrAuth)
	}

	c, err := imapclient.DialTLS(addr, &imapclient.Options{
		TLSConfig: tlsCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("imap dial tls: %w", err)
	}

	// Best-effort close on context cancel.
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })

	if err := c.Login(username, password).Wait(); err != nil {
		stop()
		_ = c.Close()
		return nil, classifyLogin(err)
	}
	stop()
	return c, nil
}

// classifyLogin turns a server-side NO/BAD on LOGIN into ErrAuth; transport
// failures stay generic.
func classifyLogin(err error) error {
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		return fmt.Errorf("%w: %s", ErrAuth, strings.TrimSpace(imapErr.Text))
	}
	return fmt.Errorf("imap login: %w", err)
}

// subjectCriteria matches unseen messages whose subject contains any phrase.
func subjectCriteria(phrases []string) *imap.SearchCriteria {
	c := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	var terms []imap.SearchCriteria
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			terms = append(terms, imap.SearchCriteria{
				Header: []imap.SearchCriteriaHeaderField{{Key: "Subject", Value: p}},
			})
		}
	}
	switch len(terms) {
	case 0:
	case 1:
		c.Header = terms[0].Header
	default:
		c.Or = append(c.Or, orChain(terms))
	}
	return c
}

// orChain folds terms into nested ORs: a OR (b OR (c ...)).
func orChain(terms []imap.SearchCriteria) [2]imap.SearchCriteria {
	if len(terms) == 2 {
		return [2]imap.SearchCriteria{terms[0], terms[1]}
	}
	rest := orChain(terms[1:])
	return [2]imap.SearchCriteria{terms[0], {Or: [][2]imap.SearchCriteria{rest}}}
}

// logoutAndClose logs out then closes the connection. Once ctx is done the
// connection is only closed, since the server may no longer be answering.
func logoutAndClose(ctx context.Context, c *imapclient.Client) {
	if c == nil {
		return
	}
	if ctx.Err() != nil {
		_ = c.Close()
		return
	}
	if err := c.Logout().Wait(); err != nil {
		log.Printf("[mail] imap logout: %v", err)
	}
	_ = c.Close()
}

func joinAddrs(addrs []imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(addrs))
	for i := range addrs {
		a := &addrs[i]
		addr := strings.TrimSpace(a.Addr())
		if addr == "" {
			addr = strings.TrimSpace(a.Name)
		}
		if addr != "" {
			parts = append(parts, addr)
		}
	}
	return strings.Join(parts, ", ")
}

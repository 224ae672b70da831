package mailcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectCriteriaTwoPhrases(t *testing.T) {
	c := subjectCriteria([]string{"New Job Alert", " New revision job coming up "})

	assert.Equal(t, []imap.Flag{imap.FlagSeen}, c.NotFlag)
	assert.Empty(t, c.Header)
	require.Len(t, c.Or, 1)
	assert.Equal(t, "New Job Alert", c.Or[0][0].Header[0].Value)
	assert.Equal(t, "New revision job coming up", c.Or[0][1].Header[0].Value)
	assert.Equal(t, "Subject", c.Or[0][1].Header[0].Key)
}

func TestSubjectCriteriaSingleAndNone(t *testing.T) {
	c := subjectCriteria([]string{"only"})
	assert.Empty(t, c.Or)
	require.Len(t, c.Header, 1)
	assert.Equal(t, "only", c.Header[0].Value)

	c = subjectCriteria([]string{"", "  "})
	assert.Empty(t, c.Or)
	assert.Empty(t, c.Header)
	assert.Equal(t, []imap.Flag{imap.FlagSeen}, c.NotFlag)
}

func TestSubjectCriteriaNestsBeyondTwo(t *testing.T) {
	c := subjectCriteria([]string{"a", "b", "c"})
	require.Len(t, c.Or, 1)
	assert.Equal(t, "a", c.Or[0][0].Header[0].Value)

	inner := c.Or[0][1]
	require.Len(t, inner.Or, 1)
	assert.Equal(t, "b", inner.Or[0][0].Header[0].Value)
	assert.Equal(t, "c", inner.Or[0][1].Header[0].Value)
}

func TestClassifyLogin(t *testing.T) {
	rejected := &imap.Error{
		Type: imap.StatusResponseTypeNo,
		Code: imap.ResponseCodeAuthenticationFailed,
		Text: "Invalid credentials",
	}
	err := classifyLogin(rejected)
	assert.True(t, errors.Is(err, ErrAuth))
	assert.Contains(t, err.Error(), "Invalid credentials")

	err = classifyLogin(errors.New("connection reset by peer"))
	assert.False(t, errors.Is(err, ErrAuth))
}

func TestPollWithoutCredentialsIsAuthError(t *testing.T) {
	c := New(Config{Host: "127.0.0.1", Port: 1})
	_, err := c.Poll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuth))
}

func TestAddrAndHost(t *testing.T) {
	assert.Equal(t, "imap.gmail.com:993", New(Config{Host: "imap.gmail.com"}).addr())
	assert.Equal(t, "mail.example.com:1993", New(Config{Host: "mail.example.com:1993"}).addr())
	assert.Equal(t, "imap.gmail.com", hostOnly("imap.gmail.com:993"))
}

func TestDecodeHeader(t *testing.T) {
	assert.Equal(t, "New Job Alert – FR", decodeHeader("=?UTF-8?Q?New_Job_Alert_=E2=80=93_FR?="))
	assert.Equal(t, "plain", decodeHeader(" plain "))
}

func TestJoinAddrs(t *testing.T) {
	got := joinAddrs([]imap.Address{
		{Name: "Portal", Mailbox: "noreply", Host: "portal.example.com"},
		{Name: "Only Name"},
	})
	assert.Equal(t, "noreply@portal.example.com, Only Name", got)
}

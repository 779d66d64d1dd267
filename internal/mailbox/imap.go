// Package mailbox reads unseen messages from the watched IMAP inbox.
package mailbox

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/rs/zerolog/log"
)

const inbox = "INBOX"

type Credentials struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Store opens mailbox sessions.
type Store interface {
	Connect(ctx context.Context, creds Credentials) (Session, error)
}

// Session is a logged-in connection with the inbox selected. Message ids are
// IMAP UIDs.
type Session interface {
	ListUnseen(ctx context.Context) ([]uint32, error)
	// Fetch returns the full RFC 5322 message and marks it seen.
	Fetch(ctx context.Context, id uint32) ([]byte, error)
	Logout() error
}

// IMAPStore connects over implicit TLS, or plain TCP when TLS is disabled for
// local test servers.
type IMAPStore struct {
	Timeout  time.Duration
	Insecure bool
}

func NewIMAPStore(timeout time.Duration) *IMAPStore {
	return &IMAPStore{Timeout: timeout}
}

func (s *IMAPStore) Connect(ctx context.Context, creds Credentials) (Session, error) {
	port := creds.Port
	if port <= 0 {
		port = 993
	}
	address := net.JoinHostPort(creds.Host, strconv.Itoa(port))

	var cl *client.Client
	var err error
	if s.Insecure {
		cl, err = client.Dial(address)
	} else {
		cl, err = client.DialTLS(address, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	cl.Timeout = s.Timeout

	if err := cl.Login(creds.Username, creds.Password); err != nil {
		cl.Logout()
		return nil, fmt.Errorf("failed to log in as %s: %w", creds.Username, err)
	}
	if _, err := cl.Select(inbox, false); err != nil {
		cl.Logout()
		return nil, fmt.Errorf("failed to select mailbox %s: %w", inbox, err)
	}

	log.Debug().Str("server", address).Str("user", creds.Username).Msg("Connected to mailbox")
	return &imapSession{client: cl}, nil
}

type imapSession struct {
	client *client.Client
}

func (s *imapSession) ListUnseen(ctx context.Context) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search unseen messages: %w", err)
	}
	return uids, nil
}

func (s *imapSession) Fetch(ctx context.Context, id uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(id)
	section := &imap.BodySectionName{}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	// messages must be drained so UidFetch can return
	var raw []byte
	var readErr error
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil || readErr != nil {
			continue
		}
		raw, readErr = io.ReadAll(body)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", id, err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read message %d: %w", id, readErr)
	}
	if raw == nil {
		return nil, fmt.Errorf("message %d has no body", id)
	}
	return raw, nil
}

func (s *imapSession) Logout() error {
	return s.client.Logout()
}

package forward

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Server is an SMTP submission endpoint and its login.
type Server struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Outbound is a fully rendered message and its envelope recipients.
type Outbound struct {
	From string
	To   []string
	Data []byte
}

// Transport delivers outbound mail.
type Transport interface {
	Send(ctx context.Context, server Server, msg Outbound) error
}

const implicitTLSPort = 465

// SMTPTransport sends through net/smtp: implicit TLS on ImplicitTLSPort,
// STARTTLS (when offered) on any other port.
type SMTPTransport struct {
	ImplicitTLSPort int
	// TLSConfig is cloned per connection with ServerName set to the host.
	TLSConfig *tls.Config
	dialer    net.Dialer
}

func NewSMTPTransport() *SMTPTransport {
	return &SMTPTransport{ImplicitTLSPort: implicitTLSPort}
}

func (t *SMTPTransport) Send(ctx context.Context, server Server, msg Outbound) error {
	port := server.Port
	if port <= 0 {
		port = implicitTLSPort
	}
	implicitTLS := port == t.ImplicitTLSPort || (t.ImplicitTLSPort == 0 && port == implicitTLSPort)
	addr := net.JoinHostPort(server.Host, strconv.Itoa(port))

	tlsConfig := &tls.Config{}
	if t.TLSConfig != nil {
		tlsConfig = t.TLSConfig.Clone()
	}
	tlsConfig.ServerName = server.Host

	var conn net.Conn
	var err error
	if implicitTLS {
		tlsDialer := &tls.Dialer{NetDialer: &t.dialer, Config: tlsConfig}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = t.dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, server.Host)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer client.Close()

	if !implicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		} else {
			log.Warn().Str("server", addr).Msg("SMTP server does not offer STARTTLS")
		}
	}

	if server.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", server.Username, server.Password, server.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg.Data); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return client.Quit()
}

// Package forward rewrites a fetched email for its department inbox and hands
// it to the mail transport.
package forward

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"email_forwarder/internal/extraction"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"golang.org/x/net/html"
)

// Subject builds the forwarded subject line:
// ***<topic>*** - <company> - <project> - <plot> - <location> - <original>.
func Subject(topic string, details *extraction.EmailDetails, original string) string {
	plot := ""
	if p := details.Plot(); p != nil {
		plot = strconv.Itoa(*p)
	}
	return fmt.Sprintf("***%s*** - %s - %s - %s - %s - %s",
		topic, details.Company, details.ProjectName, plot, details.ProjectLocation, original)
}

// Envelope is the addressing of a forwarded email.
type Envelope struct {
	From    string
	To      string
	Subject string
}

// headers dropped from the original because they no longer hold after the
// rewrite or would leak recipients.
var droppedHeaders = []string{"Bcc", "Cc", "DKIM-Signature", "Return-Path", "Delivered-To"}

// Rewrite returns raw with From, To and Subject replaced and a fresh
// Message-Id. The MIME body is copied byte for byte.
func Rewrite(raw []byte, env Envelope) ([]byte, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	h, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read message header: %w", err)
	}

	for _, key := range droppedHeaders {
		h.Del(key)
	}
	mh := mail.Header{Header: gomessage.Header{Header: h}}
	mh.Set("From", env.From)
	mh.Set("To", env.To)
	mh.SetSubject(env.Subject)
	if err := setMessageID(&mh, env.From); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := textproto.WriteHeader(&out, mh.Header.Header); err != nil {
		return nil, fmt.Errorf("failed to write message header: %w", err)
	}
	if _, err := io.Copy(&out, br); err != nil {
		return nil, fmt.Errorf("failed to copy message body: %w", err)
	}
	return out.Bytes(), nil
}

// setMessageID replaces any Message-Id with one under the sender's domain.
func setMessageID(h *mail.Header, from string) error {
	var err error
	if addr, perr := mail.ParseAddress(from); perr == nil && strings.Contains(addr.Address, "@") {
		err = h.GenerateMessageIDWithHostname(addr.Address[strings.LastIndex(addr.Address, "@")+1:])
	} else {
		err = h.GenerateMessageID()
	}
	if err != nil {
		return fmt.Errorf("failed to generate message id: %w", err)
	}
	return nil
}

// WithBanner wraps raw in a new multipart/mixed message: the banner as HTML
// first, the original message attached as message/rfc822 second.
func WithBanner(raw []byte, env Envelope, banner string, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.Set("From", env.From)
	h.Set("To", env.To)
	h.SetSubject(env.Subject)
	if err := setMessageID(&h, env.From); err != nil {
		return nil, err
	}
	h.Set("MIME-Version", "1.0")
	h.SetContentType("multipart/mixed", nil)

	var out bytes.Buffer
	mw, err := gomessage.CreateWriter(&out, h.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	var bannerHeader gomessage.Header
	bannerHeader.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	bannerHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	if err := writePart(mw, bannerHeader, []byte(BannerHTML(banner))); err != nil {
		return nil, fmt.Errorf("failed to write banner: %w", err)
	}

	var originalHeader gomessage.Header
	originalHeader.SetContentType("message/rfc822", nil)
	originalHeader.SetContentDisposition("inline", nil)
	if err := writePart(mw, originalHeader, raw); err != nil {
		return nil, fmt.Errorf("failed to attach original message: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return out.Bytes(), nil
}

func writePart(mw *gomessage.Writer, h gomessage.Header, body []byte) error {
	pw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := pw.Write(body); err != nil {
		pw.Close()
		return err
	}
	return pw.Close()
}

// BannerHTML returns banner unchanged when it already contains markup,
// otherwise escapes it and turns newlines into line breaks.
func BannerHTML(banner string) string {
	if IsHTML(banner) {
		return banner
	}
	escaped := html.EscapeString(banner)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	return strings.ReplaceAll(escaped, "\n", "<br>")
}

// IsHTML reports whether s contains at least one HTML element.
func IsHTML(s string) bool {
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			return true
		}
	}
}

package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Email is a fetched message reduced to what the pipeline works with. Text is
// the canonical representation fed to every prompt.
type Email struct {
	From    string
	To      string
	Date    string
	Subject string
	// Body is the concatenation of the text parts, each ending in a newline.
	Body        string
	Text        string
	Attachments []Attachment
	Raw         []byte
}

// Normalize parses a raw RFC 5322 message. Parts in an unknown charset are kept
// undecoded rather than failing the whole message.
func Normalize(raw []byte) (*Email, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	defer mr.Close()

	email := &Email{
		From:    headerText(mr.Header, "From"),
		To:      headerText(mr.Header, "To"),
		Date:    mr.Header.Get("Date"),
		Subject: headerText(mr.Header, "Subject"),
		Raw:     raw,
	}

	var body strings.Builder
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !gomessage.IsUnknownCharset(err) {
			return nil, fmt.Errorf("failed to read message part: %w", err)
		}
		if part == nil {
			continue
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, params, _ := h.ContentType()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				log.Debug().Err(err).Str("content_type", contentType).Msg("Failed to read inline part")
				continue
			}
			filename := inlineFilename(h, params)
			switch {
			case contentType == "text/plain" || contentType == "":
				body.WriteString(string(data))
				body.WriteString("\n")
			case contentType == "text/html":
				body.WriteString(htmlToText(string(data)))
				body.WriteString("\n")
			case filename != "":
				email.Attachments = append(email.Attachments, newAttachment(filename, contentType, data))
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				log.Debug().Err(err).Str("filename", filename).Msg("Failed to read attachment")
				continue
			}
			if filename == "" {
				filename = fmt.Sprintf("attachment_%d", len(email.Attachments)+1)
			}
			email.Attachments = append(email.Attachments, newAttachment(filename, contentType, data))
		}
	}

	email.Body = body.String()
	email.Text = fmt.Sprintf("From: %s\nTo: %s\nDate: %s\nSubject: %s\n\n", email.From, email.To, email.Date, email.Subject) + email.Body
	return email, nil
}

// inlineFilename prefers the Content-Disposition filename over the legacy
// Content-Type name parameter.
func inlineFilename(h *mail.InlineHeader, typeParams map[string]string) string {
	if _, params, err := h.ContentDisposition(); err == nil && params["filename"] != "" {
		return params["filename"]
	}
	return typeParams["name"]
}

func headerText(h mail.Header, key string) string {
	text, err := h.Text(key)
	if err != nil {
		return h.Get(key)
	}
	return text
}

func newAttachment(filename, contentType string, data []byte) Attachment {
	if contentType == "" || contentType == "application/octet-stream" {
		if guessed := mime.TypeByExtension(filepath.Ext(filename)); guessed != "" {
			contentType = guessed
		}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return Attachment{Filename: filename, ContentType: contentType, Data: data}
}

// htmlToText keeps the text nodes of an HTML document, one per line, dropping
// script and style contents.
func htmlToText(doc string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(doc))
	var lines []string
	skip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(lines, "\n")
		case html.StartTagToken:
			if name, _ := tokenizer.TagName(); isHiddenTag(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := tokenizer.TagName(); isHiddenTag(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			text := strings.Join(strings.Fields(string(tokenizer.Text())), " ")
			if text != "" {
				lines = append(lines, text)
			}
		}
	}
}

func isHiddenTag(name []byte) bool {
	tag := string(name)
	return tag == "script" || tag == "style"
}

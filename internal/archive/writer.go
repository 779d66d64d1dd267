package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"email_forwarder/internal/config"
	"email_forwarder/internal/message"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

const emailFilename = "email.html"

type Writer struct {
	store Store
}

func NewWriter(store Store) *Writer {
	return &Writer{store: store}
}

// Archive stores the email under <root>/<project>/<project> - <phase> - <ref> - <date>
// as email.html plus every attachment, and returns the link to the email's
// folder.
func (w *Writer) Archive(ctx context.Context, rootID string, project config.Project, email *message.Email, firstRef int, date time.Time) (string, error) {
	projectFolder, err := w.store.FindOrCreateFolder(ctx, project.Name, rootID)
	if err != nil {
		return "", err
	}

	name := FolderName(project, firstRef, date)
	folder, err := w.store.FindOrCreateFolder(ctx, name, projectFolder.ID)
	if err != nil {
		return "", err
	}

	if _, err := w.store.Upload(ctx, folder, emailFilename, []byte(RenderEmailHTML(email)), "text/html"); err != nil {
		return "", err
	}
	for _, a := range email.Attachments {
		if _, err := w.store.Upload(ctx, folder, a.Filename, a.Data, a.ContentType); err != nil {
			return "", err
		}
	}

	log.Info().
		Str("project", project.Name).
		Str("folder", name).
		Int("attachments", len(email.Attachments)).
		Msg("Archived email")
	return folder.Link, nil
}

// FolderName is the per-email folder name.
func FolderName(project config.Project, firstRef int, date time.Time) string {
	return fmt.Sprintf("%s - %s - %d - %s", project.Name, project.PhaseName(), firstRef, date.Format("2006-01-02"))
}

// RenderEmailHTML renders the headers and text body of email as a small HTML
// page.
func RenderEmailHTML(email *message.Email) string {
	var b strings.Builder
	b.WriteString("<html>\n<head><meta charset=\"utf-8\"></head>\n<body>\n")
	fmt.Fprintf(&b, "<p><strong>From:</strong> %s</p>\n", html.EscapeString(email.From))
	fmt.Fprintf(&b, "<p><strong>To:</strong> %s</p>\n", html.EscapeString(email.To))
	fmt.Fprintf(&b, "<p><strong>Subject:</strong> %s</p>\n", html.EscapeString(email.Subject))
	fmt.Fprintf(&b, "<p>%s</p>\n", strings.ReplaceAll(html.EscapeString(email.Body), "\n", "<br>\n"))
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

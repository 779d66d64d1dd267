package archive

import (
	"context"
	"fmt"
	"testing"
	"time"

	"email_forwarder/internal/config"
	"email_forwarder/internal/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upload struct {
	folder   string
	filename string
	mimeType string
	data     []byte
}

type fakeStore struct {
	folders map[string]Folder // parent/name -> folder
	uploads []upload
	created int
}

func newFakeStore() *fakeStore {
	return &fakeStore{folders: make(map[string]Folder)}
}

func (f *fakeStore) FindOrCreateFolder(ctx context.Context, name, parentID string) (Folder, error) {
	key := parentID + "/" + name
	if folder, ok := f.folders[key]; ok {
		return folder, nil
	}
	f.created++
	folder := Folder{ID: fmt.Sprintf("f%d", f.created), Link: fmt.Sprintf("https://drive.example/f%d", f.created)}
	f.folders[key] = folder
	return folder, nil
}

func (f *fakeStore) Upload(ctx context.Context, folder Folder, filename string, data []byte, mimeType string) (File, error) {
	f.uploads = append(f.uploads, upload{folder: folder.ID, filename: filename, mimeType: mimeType, data: data})
	return File{ID: filename}, nil
}

func TestArchive(t *testing.T) {
	store := newFakeStore()
	phase := "Phase 2"
	project := config.Project{Name: "Riverside", Phase: &phase}
	email := &message.Email{
		From:    "Jane <jane@acme.co.uk>",
		To:      "orders@builder.co.uk",
		Subject: "Plot 12 windows",
		Body:    "3 windows\nthanks\n",
		Attachments: []message.Attachment{
			{Filename: "quote.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
		},
	}
	date := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)

	link, err := NewWriter(store).Archive(context.Background(), "root", project, email, 8, date)
	require.NoError(t, err)

	emailFolder := store.folders["f1/Riverside - Phase 2 - 8 - 2025-06-02"]
	assert.Equal(t, emailFolder.Link, link)
	assert.Contains(t, store.folders, "root/Riverside")

	require.Len(t, store.uploads, 2)
	assert.Equal(t, upload{folder: emailFolder.ID, filename: "email.html", mimeType: "text/html", data: []byte(RenderEmailHTML(email))}, store.uploads[0])
	assert.Equal(t, "quote.pdf", store.uploads[1].filename)
	assert.Equal(t, "application/pdf", store.uploads[1].mimeType)
}

func TestFolderNameWithoutPhase(t *testing.T) {
	name := FolderName(config.Project{Name: "Misc"}, 1, time.Date(2025, time.January, 9, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "Misc -  - 1 - 2025-01-09", name)
}

func TestRenderEmailHTMLEscapes(t *testing.T) {
	out := RenderEmailHTML(&message.Email{From: "Jane <jane@acme.co.uk>", Body: "a < b\nc"})
	assert.Contains(t, out, "Jane &lt;jane@acme.co.uk&gt;")
	assert.Contains(t, out, "a &lt; b<br>\nc")
}

func TestFolderQuery(t *testing.T) {
	assert.Equal(t,
		`name = 'Bob\'s site' and mimeType = 'application/vnd.google-apps.folder' and trashed = false and 'root1' in parents`,
		folderQuery("Bob's site", "root1"))
}

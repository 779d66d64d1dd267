// Package archive files a copy of each ledger email and its attachments in
// Google Drive so the ledger rows can link to it.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"email_forwarder/internal/gauth"
	"email_forwarder/internal/retry"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Folder and File are Drive handles; Link is the shareable web URL.
type Folder struct {
	ID   string
	Link string
}

type File struct {
	ID   string
	Link string
}

// Store is the archive backend.
type Store interface {
	FindOrCreateFolder(ctx context.Context, name, parentID string) (Folder, error)
	Upload(ctx context.Context, folder Folder, filename string, data []byte, mimeType string) (File, error)
}

// DriveStore keeps the archive in Google Drive, shared drives included.
type DriveStore struct {
	service *drive.Service
	policy  retry.Config
}

func NewDriveStore(ctx context.Context, credentialsFile string, policy retry.Config) (*DriveStore, error) {
	return NewDriveStoreWithOptions(ctx, policy, gauth.ClientOptions(credentialsFile)...)
}

func NewDriveStoreWithOptions(ctx context.Context, policy retry.Config, opts ...option.ClientOption) (*DriveStore, error) {
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &DriveStore{service: service, policy: policy}, nil
}

func (d *DriveStore) FindOrCreateFolder(ctx context.Context, name, parentID string) (Folder, error) {
	found, err := retry.WithRetry(ctx, d.policy, func(ctx context.Context) (*drive.FileList, error) {
		list, err := d.service.Files.List().
			Q(folderQuery(name, parentID)).
			Fields("files(id, name, webViewLink)").
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			PageSize(1).
			Context(ctx).
			Do()
		return list, gauth.Classify("drive folder "+parentID, err)
	})
	if err != nil {
		return Folder{}, fmt.Errorf("failed to look up folder %q: %w", name, err)
	}
	if len(found.Files) > 0 {
		return Folder{ID: found.Files[0].Id, Link: found.Files[0].WebViewLink}, nil
	}

	meta := &drive.File{Name: name, MimeType: folderMimeType}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	created, err := retry.WithRetry(ctx, d.policy, func(ctx context.Context) (*drive.File, error) {
		f, err := d.service.Files.Create(meta).
			Fields("id, webViewLink").
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		return f, gauth.Classify("drive folder "+parentID, err)
	})
	if err != nil {
		return Folder{}, fmt.Errorf("failed to create folder %q: %w", name, err)
	}

	log.Debug().Str("folder", name).Str("id", created.Id).Msg("Created archive folder")
	return Folder{ID: created.Id, Link: created.WebViewLink}, nil
}

func (d *DriveStore) Upload(ctx context.Context, folder Folder, filename string, data []byte, mimeType string) (File, error) {
	created, err := retry.WithRetry(ctx, d.policy, func(ctx context.Context) (*drive.File, error) {
		meta := &drive.File{Name: filename, Parents: []string{folder.ID}}
		f, err := d.service.Files.Create(meta).
			Media(bytes.NewReader(data), googleapi.ContentType(mimeType)).
			Fields("id, webViewLink").
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		return f, gauth.Classify("drive folder "+folder.ID, err)
	})
	if err != nil {
		return File{}, fmt.Errorf("failed to upload %q: %w", filename, err)
	}
	return File{ID: created.Id, Link: created.WebViewLink}, nil
}

// folderQuery builds a Drive search for a non-trashed folder by exact name.
func folderQuery(name, parentID string) string {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQuery(name), folderMimeType)
	if parentID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(parentID))
	}
	return q
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

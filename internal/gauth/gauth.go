// Package gauth holds what the Sheets and Drive adapters share: service
// account client options and the mapping of Google API errors onto the
// pipeline's error taxonomy.
package gauth

import (
	"errors"
	"fmt"
	"net/http"

	"email_forwarder/internal/retry"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// PermissionError means the service account may not read or write a resource.
// The pipeline treats it as "cannot write for this project" and carries on.
type PermissionError struct {
	Resource   string
	StatusCode int
	Underlying error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied on %s (HTTP %d): %v", e.Resource, e.StatusCode, e.Underlying)
}

func (e *PermissionError) Unwrap() error {
	return e.Underlying
}

// ClientOptions returns the options used to build every Google service.
func ClientOptions(credentialsFile string) []option.ClientOption {
	return []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
}

// Classify maps a Google API error for resource: 401/403 become a permanent
// PermissionError, other 4xx (except 429) become permanent, everything else is
// returned as-is so the retry layer may try again.
func Classify(resource string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return retry.Permanent(&PermissionError{Resource: resource, StatusCode: apiErr.Code, Underlying: err})
	case apiErr.Code == http.StatusTooManyRequests:
		return err
	case apiErr.Code >= 400 && apiErr.Code < 500:
		return retry.Permanent(err)
	default:
		return err
	}
}

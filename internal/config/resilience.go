package config

import (
	"time"

	"email_forwarder/internal/retry"
)

// ResilienceConfig bounds every external call the pipeline makes. Reads and
// oracle completions are retried on transient failures; writes only get a
// timeout, since repeating an insert or a send is not safe.
type ResilienceConfig struct {
	Oracle     retry.Config
	SheetRead  retry.Config
	SheetWrite retry.Config
	Archive    retry.Config
	Mail       retry.Config
}

var DefaultResilienceConfig = ResilienceConfig{
	Oracle: retry.Config{
		Name:       "oracle",
		MaxRetries: 2,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    90 * time.Second,
	},
	SheetRead: retry.Config{
		Name:       "sheet_read",
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    15 * time.Second,
	},
	SheetWrite: retry.Config{
		Name:       "sheet_write",
		MaxRetries: 0,
		Timeout:    20 * time.Second,
	},
	Archive: retry.Config{
		Name:       "archive",
		MaxRetries: 0,
		Timeout:    60 * time.Second,
	},
	Mail: retry.Config{
		Name:       "mail",
		MaxRetries: 0,
		Timeout:    60 * time.Second,
	},
}

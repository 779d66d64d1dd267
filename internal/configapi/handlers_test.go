package configapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"email_forwarder/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `{
	"imap_host": "imap.builder.co.uk",
	"email": "inbox@builder.co.uk",
	"password": "secret",
	"smtp_server": "smtp.builder.co.uk",
	"smtp_port": 465,
	"prompt_subject_line": "Extract details from {email_message}",
	"prompt_forward_email": "Pick one of {topics} for {email_message}",
	"prompt_project": "Pick one of {projects} for {email_message}",
	"receiver_emails": [{"name": "order", "email": "orders@builder.co.uk"}],
	"projects": [{"name": "Riverside", "plot_range": {"start": 1, "end": 20}}],
	"project_types": [{"name": "Windows", "day_rate": "120", "hour_rate": 20}],
	"misc_sheet_url": "https://docs.google.com/spreadsheets/d/misc/edit"
}`

func newTestServer(t *testing.T) (*httptest.Server, *config.SQLiteStore) {
	store, err := config.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	server := httptest.NewServer(NewRouter(NewHandler(store)))
	t.Cleanup(server.Close)
	return server, store
}

func TestGetConfigNotSet(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSaveThenGetConfig(t *testing.T) {
	server, store := newTestServer(t)

	resp, err := http.Post(server.URL+"/", "application/json", strings.NewReader(validConfig))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cfg, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "imap.builder.co.uk", cfg.IMAPHost)
	require.Len(t, cfg.ProjectTypes, 1)
	assert.Equal(t, "120", cfg.ProjectTypes[0].DayRate.String())

	resp, err = http.Get(server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "inbox@builder.co.uk", got["email"])
}

func TestSaveConfigRejectsBadInput(t *testing.T) {
	missingPlaceholder := strings.Replace(validConfig, "Pick one of {projects} for {email_message}", "Which project?", 1)
	noReceivers := strings.Replace(validConfig, `[{"name": "order", "email": "orders@builder.co.uk"}]`, `[]`, 1)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"whitespace", "  \n"},
		{"not json", "{imap_host: nope"},
		{"wrong shape", `{"receiver_emails": "order"}`},
		{"missing placeholder", missingPlaceholder},
		{"no receivers", noReceivers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, store := newTestServer(t)

			resp, err := http.Post(server.URL+"/", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)

			_, err = store.GetRaw(context.Background())
			assert.ErrorIs(t, err, config.ErrNotFound)
		})
	}
}

func TestSaveConfigReplacesPrevious(t *testing.T) {
	server, store := newTestServer(t)

	for _, host := range []string{"imap.one.co.uk", "imap.two.co.uk"} {
		body := strings.Replace(validConfig, "imap.builder.co.uk", host, 1)
		resp, err := http.Post(server.URL+"/", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	cfg, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "imap.two.co.uk", cfg.IMAPHost)
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	server, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://admin.example")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

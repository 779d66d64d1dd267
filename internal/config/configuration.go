package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Configuration is the business configuration read at the start of every poll
// cycle. Components receive it explicitly and never mutate it.
type Configuration struct {
	IMAPHost string `json:"imap_host" yaml:"imap_host"`
	IMAPPort int    `json:"imap_port" yaml:"imap_port"`
	Email    string `json:"email" yaml:"email"`
	Password string `json:"password" yaml:"password"`

	SMTPServer string `json:"smtp_server" yaml:"smtp_server"`
	SMTPPort   int    `json:"smtp_port" yaml:"smtp_port"`

	OracleProvider string `json:"oracle_provider,omitempty" yaml:"oracle_provider,omitempty"`
	OpenAIAPIKey   string `json:"openai_api_key,omitempty" yaml:"openai_api_key,omitempty"`
	GeminiAPIKey   string `json:"gemini_api_key,omitempty" yaml:"gemini_api_key,omitempty"`
	OracleModel    string `json:"oracle_model,omitempty" yaml:"oracle_model,omitempty"`

	PromptSubjectLine  string `json:"prompt_subject_line" yaml:"prompt_subject_line"`
	PromptForwardEmail string `json:"prompt_forward_email" yaml:"prompt_forward_email"`
	PromptProject      string `json:"prompt_project" yaml:"prompt_project"`

	ReceiverEmails []ReceiverEmail `json:"receiver_emails" yaml:"receiver_emails"`
	Projects       []Project       `json:"projects" yaml:"projects"`
	ProjectTypes   []ProjectType   `json:"project_types" yaml:"project_types"`

	MiscSheetURL    string `json:"misc_sheet_url" yaml:"misc_sheet_url"`
	ArchiveFolderID string `json:"archive_folder_id,omitempty" yaml:"archive_folder_id,omitempty"`
}

// ReceiverEmail is a routing destination. Name doubles as the topic label the
// oracle has to answer with.
type ReceiverEmail struct {
	Name   string `json:"name" yaml:"name"`
	Email  string `json:"email" yaml:"email"`
	Header string `json:"header,omitempty" yaml:"header,omitempty"`
}

type PlotRange struct {
	Start *int `json:"start,omitempty" yaml:"start,omitempty"`
	End   *int `json:"end,omitempty" yaml:"end,omitempty"`
}

// Contains reports whether plot lies within the range. A missing bound is open.
func (r PlotRange) Contains(plot int) bool {
	if r.Start != nil && plot < *r.Start {
		return false
	}
	if r.End != nil && plot > *r.End {
		return false
	}
	return true
}

type Project struct {
	Name           string     `json:"name" yaml:"name"`
	Phase          *string    `json:"phase,omitempty" yaml:"phase,omitempty"`
	PlotRange      *PlotRange `json:"plot_range,omitempty" yaml:"plot_range,omitempty"`
	LinkedContacts string     `json:"linked_contacts,omitempty" yaml:"linked_contacts,omitempty"`
	GoogleSheetURL string     `json:"google_sheet_url,omitempty" yaml:"google_sheet_url,omitempty"`
	// SheetURLs maps an item type (trade) to its own ledger sheet.
	SheetURLs map[string]string `json:"sheet_urls,omitempty" yaml:"sheet_urls,omitempty"`
}

// PhaseName returns the phase or an empty string.
func (p Project) PhaseName() string {
	if p.Phase == nil {
		return ""
	}
	return *p.Phase
}

// Contacts splits LinkedContacts on commas, dropping blanks and duplicates.
func (p Project) Contacts() []string {
	var contacts []string
	seen := make(map[string]bool)
	for _, raw := range strings.Split(p.LinkedContacts, ",") {
		contact := strings.TrimSpace(raw)
		if contact == "" || seen[contact] {
			continue
		}
		seen[contact] = true
		contacts = append(contacts, contact)
	}
	return contacts
}

// SheetFor returns the ledger sheet for the given item type, preferring a
// per-trade sheet and falling back to the project's single sheet.
func (p Project) SheetFor(itemType string) (string, error) {
	if url := p.SheetURLs[itemType]; url != "" {
		return url, nil
	}
	for trade, url := range p.SheetURLs {
		if strings.EqualFold(strings.TrimSpace(trade), strings.TrimSpace(itemType)) && url != "" {
			return url, nil
		}
	}
	if p.GoogleSheetURL != "" {
		return p.GoogleSheetURL, nil
	}
	return "", &ConfigurationError{
		Field:  "projects",
		Reason: fmt.Sprintf("no ledger sheet configured for project %q and item type %q", p.Name, itemType),
	}
}

type ProjectType struct {
	Name     string          `json:"name" yaml:"name"`
	DayRate  decimal.Decimal `json:"day_rate" yaml:"day_rate"`
	HourRate decimal.Decimal `json:"hour_rate" yaml:"hour_rate"`
	Keywords string          `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// MiscProject is the fallback used when no configured project matches.
func (c *Configuration) MiscProject() Project {
	return Project{Name: "Misc", GoogleSheetURL: c.MiscSheetURL}
}

// ProjectType finds a configured project type by name, ignoring case and
// surrounding whitespace.
func (c *Configuration) ProjectType(name string) (ProjectType, bool) {
	name = strings.TrimSpace(name)
	for _, pt := range c.ProjectTypes {
		if strings.EqualFold(strings.TrimSpace(pt.Name), name) {
			return pt, true
		}
	}
	return ProjectType{}, false
}

// Receiver returns the receiver whose name equals topic exactly.
func (c *Configuration) Receiver(topic string) (ReceiverEmail, bool) {
	for _, r := range c.ReceiverEmails {
		if r.Name == topic {
			return r, true
		}
	}
	return ReceiverEmail{}, false
}

// TopicNames lists receiver names in configured order.
func (c *Configuration) TopicNames() []string {
	names := make([]string, 0, len(c.ReceiverEmails))
	for _, r := range c.ReceiverEmails {
		names = append(names, r.Name)
	}
	return names
}

// ProjectNames lists project names in configured order.
func (c *Configuration) ProjectNames() []string {
	names := make([]string, 0, len(c.Projects))
	for _, p := range c.Projects {
		names = append(names, p.Name)
	}
	return names
}

// Validate checks the structural invariants of the configuration. Prompt
// placeholders are checked separately by the prompt package.
func (c *Configuration) Validate() error {
	if len(c.ReceiverEmails) == 0 {
		return &ConfigurationError{Field: "receiver_emails", Reason: "at least one receiver is required"}
	}
	seen := make(map[string]bool)
	for _, r := range c.ReceiverEmails {
		if r.Name == "" || r.Email == "" {
			return &ConfigurationError{Field: "receiver_emails", Reason: "receiver name and email are required"}
		}
		if seen[r.Name] {
			return &ConfigurationError{Field: "receiver_emails", Reason: fmt.Sprintf("duplicate receiver name %q", r.Name)}
		}
		seen[r.Name] = true
	}
	for _, p := range c.Projects {
		if p.Name == "" {
			return &ConfigurationError{Field: "projects", Reason: "project name is required"}
		}
		if r := p.PlotRange; r != nil && r.Start != nil && r.End != nil && *r.Start > *r.End {
			return &ConfigurationError{
				Field:  "projects",
				Reason: fmt.Sprintf("project %q has plot range start %d after end %d", p.Name, *r.Start, *r.End),
			}
		}
		trades := make(map[string]string)
		for trade := range p.SheetURLs {
			key := strings.ToLower(strings.TrimSpace(trade))
			if other, ok := trades[key]; ok {
				return &ConfigurationError{
					Field:  "projects",
					Reason: fmt.Sprintf("project %q has sheet urls %q and %q for the same item type", p.Name, other, trade),
				}
			}
			trades[key] = trade
		}
	}
	for _, pt := range c.ProjectTypes {
		if pt.Name == "" {
			return &ConfigurationError{Field: "project_types", Reason: "project type name is required"}
		}
	}
	return nil
}

// package formatter renders stored sessions and credentials for the CLI as a styled table,
// JSON or CSV
package formatter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/desertthunder/ytgate/internal/models"
	"github.com/desertthunder/ytgate/internal/shared"
	"github.com/desertthunder/ytgate/internal/ui"
)

// Format selects an output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// ParseFormat validates a --format value. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (want table, json or csv)", shared.ErrInvalidArgument, s)
	}
}

// SessionView is the printable form of a session. The token digest is shortened.
type SessionView struct {
	ID           int64      `json:"id"`
	CredentialID int64      `json:"credential_id"`
	TokenHash    string     `json:"token_hash"`
	State        string     `json:"state"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	UserAgent    string     `json:"user_agent,omitempty"`
	ClientIP     string     `json:"client_ip,omitempty"`
}

// CredentialView is the printable form of a stored credential. Tokens and the client secret
// are never included.
type CredentialView struct {
	ID         int64     `json:"id"`
	ClientID   string    `json:"client_id"`
	Subject    string    `json:"subject,omitempty"`
	Email      string    `json:"email,omitempty"`
	Scopes     []string  `json:"scopes"`
	Expiry     time.Time `json:"expiry,omitzero"`
	HasRefresh bool      `json:"has_refresh_token"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SessionState names where a session is in its lifecycle at now.
func SessionState(s *models.Session, now time.Time) string {
	switch {
	case !s.Active:
		return "revoked"
	case !s.Usable(now):
		return "expired"
	default:
		return "active"
	}
}

func NewSessionView(s *models.Session, now time.Time) SessionView {
	hash := s.TokenHash
	if len(hash) > 12 {
		hash = hash[:12]
	}
	return SessionView{
		ID:           s.ID(),
		CredentialID: s.CredentialID,
		TokenHash:    hash,
		State:        SessionState(s, now),
		CreatedAt:    s.Created,
		ExpiresAt:    s.ExpiresAt,
		RevokedAt:    s.RevokedAt,
		UserAgent:    s.Meta.UserAgent,
		ClientIP:     s.Meta.ClientIP,
	}
}

func NewCredentialView(c *models.StoredCredential) CredentialView {
	return CredentialView{
		ID:         c.ID(),
		ClientID:   c.ClientID,
		Subject:    c.Subject,
		Email:      c.Email,
		Scopes:     c.GrantedScopes(),
		Expiry:     c.Expiry,
		HasRefresh: c.RefreshToken != "",
		UpdatedAt:  c.UpdatedAt(),
	}
}

var (
	sessionHeaders    = []string{"ID", "Credential", "Token", "State", "Created", "Expires", "Client", "User-Agent"}
	credentialHeaders = []string{"ID", "Client ID", "Email", "Scopes", "Expiry", "Refresh", "Updated"}
)

func (v SessionView) record() []string {
	return []string{
		strconv.FormatInt(v.ID, 10),
		strconv.FormatInt(v.CredentialID, 10),
		v.TokenHash,
		v.State,
		stamp(v.CreatedAt),
		stamp(v.ExpiresAt),
		v.ClientIP,
		v.UserAgent,
	}
}

func (v CredentialView) record() []string {
	return []string{
		strconv.FormatInt(v.ID, 10),
		v.ClientID,
		v.Email,
		strings.Join(v.Scopes, " "),
		stamp(v.Expiry),
		strconv.FormatBool(v.HasRefresh),
		stamp(v.UpdatedAt),
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// WriteSessions writes sessions to w in the given format.
func WriteSessions(w io.Writer, f Format, sessions []*models.Session, now time.Time) error {
	views := make([]SessionView, len(sessions))
	rows := make([][]string, len(sessions))
	for i, s := range sessions {
		views[i] = NewSessionView(s, now)
		rows[i] = views[i].record()
	}
	return write(w, f, views, sessionHeaders, rows)
}

// WriteCredentials writes credentials to w in the given format.
func WriteCredentials(w io.Writer, f Format, creds []*models.StoredCredential) error {
	views := make([]CredentialView, len(creds))
	rows := make([][]string, len(creds))
	for i, c := range creds {
		views[i] = NewCredentialView(c)
		rows[i] = views[i].record()
	}
	return write(w, f, views, credentialHeaders, rows)
}

func write(w io.Writer, f Format, views any, headers []string, rows [][]string) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(views); err != nil {
			return fmt.Errorf("failed to write JSON: %w", err)
		}
		return nil
	case FormatCSV:
		return writeCSV(w, headers, rows)
	default:
		return writeTable(w, headers, rows)
	}
}

func writeCSV(w io.Writer, headers []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV records: %w", err)
	}
	return nil
}

func writeTable(w io.Writer, headers []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, ui.Styles.Hint("no results"))
		return err
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(ui.Styles.Border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return ui.Styles.Header
			}
			return ui.Styles.Cell
		})

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

package notify

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"meteonotify/internal/types"
)

// snippetLines is the number of description lines kept in the email body.
const snippetLines = 3

//go:embed templates/notification.html.tmpl
var notificationTemplate string

// Composer renders the subject and HTML body shared by every recipient.
type Composer struct {
	siteName string
	siteURL  string
	tmpl     *template.Template
}

type notificationView struct {
	Type     string
	Snippet  string
	SiteName string
	SiteURL  string
}

// NewComposer parses the embedded body template.
func NewComposer(siteName, siteURL string) (*Composer, error) {
	// text/template: the body is emitted byte-for-byte, Type and Description
	// are not HTML-escaped. Switching to html/template escapes them.
	tmpl, err := template.New("notification").Parse(strings.TrimSuffix(notificationTemplate, "\n"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse notification template: %w", err)
	}
	return &Composer{
		siteName: siteName,
		siteURL:  siteURL,
		tmpl:     tmpl,
	}, nil
}

// Subject returns the subject line for a notification of the given type.
func (c *Composer) Subject(notificationType string) string {
	return fmt.Sprintf("Nouveau %s publié par %s", notificationType, c.siteName)
}

// Compose builds the message for req. The result depends only on req and
// the site identity.
func (c *Composer) Compose(req types.NotificationRequest) (types.NotificationMessage, error) {
	var body strings.Builder
	err := c.tmpl.Execute(&body, notificationView{
		Type:     req.Type,
		Snippet:  Snippet(req.Description),
		SiteName: c.siteName,
		SiteURL:  c.siteURL,
	})
	if err != nil {
		return types.NotificationMessage{}, fmt.Errorf("failed to render notification body: %w", err)
	}

	return types.NotificationMessage{
		Subject:  c.Subject(req.Type),
		HTMLBody: body.String(),
	}, nil
}

// Snippet keeps the first three lines of description and always appends
// "...", even when the description is shorter.
func Snippet(description string) string {
	lines := strings.Split(description, "\n")
	if len(lines) > snippetLines {
		lines = lines[:snippetLines]
	}
	return strings.Join(lines, "\n") + "..."
}

// Package mailing renders and delivers the transactional emails.
package mailing

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/jaytaylor/html2text"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	TemplateWelcome       = "welcome"
	TemplateWelcomeNoIDs  = "welcome_no_ids"
	TemplateChatbotShared = "chatbot_shared"

	WelcomeSubject = "Welcome to Docu Talk!"
)

// Email is a rendered message, ready to be sent or queued.
type Email struct {
	Template string `json:"template"`
	From     string `json:"from"`
	To       string `json:"to"`
	Bcc      string `json:"bcc,omitempty"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
	Text     string `json:"text"`
}

// Sender delivers an email.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

// Dispatcher hands an email over for delivery, now or later.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Email) error
}

// Composer builds emails from the embedded templates.
type Composer struct {
	From    string
	Bcc     string
	LogoURL string
}

func (c Composer) Welcome(to, firstName, password string) (Email, error) {
	return c.compose(TemplateWelcome, to, WelcomeSubject, map[string]string{
		"FirstName": firstName,
		"Email":     to,
		"Password":  password,
	})
}

// WelcomeNoIDs is sent to accounts created through an OAuth provider.
func (c Composer) WelcomeNoIDs(to, firstName string) (Email, error) {
	return c.compose(TemplateWelcomeNoIDs, to, WelcomeSubject, map[string]string{
		"FirstName": firstName,
	})
}

func (c Composer) ChatbotShared(to, sharingName, chatbotName string) (Email, error) {
	return c.compose(TemplateChatbotShared, to, sharingName+" shared a Chat Bot with you!", map[string]string{
		"SharingName": sharingName,
		"ChatbotName": chatbotName,
	})
}

func (c Composer) compose(name, to, subject string, data map[string]string) (Email, error) {
	data["LogoURL"] = c.LogoURL
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name+".html", data); err != nil {
		return Email{}, fmt.Errorf("rendering %s email: %w", name, err)
	}
	html := buf.String()
	text, err := html2text.FromString(html, html2text.Options{OmitLinks: true})
	if err != nil {
		return Email{}, fmt.Errorf("converting %s email to text: %w", name, err)
	}
	return Email{
		Template: name,
		From:     c.From,
		To:       to,
		Bcc:      c.Bcc,
		Subject:  subject,
		HTML:     html,
		Text:     text,
	}, nil
}

package email

import (
	"bytes"
	"fmt"
	"html/template"
)

const (
	TemplatePasswordReset = "password_reset"
	TemplateWelcome       = "welcome"
)

// PasswordResetData fills the password_reset template.
type PasswordResetData struct {
	Link      string
	ExpiresIn string // "1 hour"
}

// WelcomeData fills the welcome template.
type WelcomeData struct {
	Name      string
	ClientURL string
}

// Message is a rendered email.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

var layout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>{{.Subject}}</title></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background: #1f2937; padding: 24px; border-radius: 10px 10px 0 0;">
    <h1 style="color: white; margin: 0; font-size: 22px;">notedesk</h1>
  </div>
  <div style="background: #fff; padding: 30px; border: 1px solid #e0e0e0; border-top: none; border-radius: 0 0 10px 10px;">
    {{block "content" .}}<p>{{.Data}}</p>{{end}}
    {{with .Button}}<div style="text-align: center; margin: 30px 0;"><a href="{{.URL}}" style="background: #2563eb; color: white; padding: 14px 30px; text-decoration: none; border-radius: 6px; font-weight: 600;">{{.Label}}</a></div>{{end}}
    <hr style="border: none; border-top: 1px solid #e0e0e0; margin: 20px 0;">
    <p style="color: #999; font-size: 12px;">Automated message from notedesk. Replies are not read.</p>
  </div>
</body>
</html>`))

var (
	resetPage = template.Must(template.Must(layout.Clone()).Parse(`{{define "content"}}<h2>Reset your password</h2>
    <p>Someone asked to reset the password on this account. The link below expires in <strong>{{.Data.ExpiresIn}}</strong>.</p>
    <p style="color: #666; font-size: 14px;">If that wasn't you, ignore this email and your password stays the same.</p>{{end}}`))

	welcomePage = template.Must(template.Must(layout.Clone()).Parse(`{{define "content"}}<h2>Welcome, {{.Data.Name}}!</h2>
    <p>Your account is ready. Capture notes, plan tasks by day, and let the assistant tidy up your writing.</p>{{end}}`))

	fallbackPage = layout
)

type button struct {
	URL   template.URL
	Label string
}

type page struct {
	Subject string
	Data    any
	Button  *button
}

// Render produces the subject and bodies for templateName. Unknown names,
// or data of the wrong type, render a generic message that prints data.
func Render(templateName string, data any) (Message, error) {
	var (
		tmpl = fallbackPage
		p    = page{Subject: "Message from notedesk", Data: fmt.Sprintf("%+v", data)}
		text = fmt.Sprintf("%+v", data)
	)
	switch d := data.(type) {
	case PasswordResetData:
		if templateName == TemplatePasswordReset {
			tmpl = resetPage
			p = page{Subject: "Reset your password - notedesk", Data: d, Button: &button{URL: template.URL(d.Link), Label: "Reset Password"}}
			text = fmt.Sprintf("Reset your password within %s:\n%s\n", d.ExpiresIn, d.Link)
		}
	case WelcomeData:
		if templateName == TemplateWelcome {
			tmpl = welcomePage
			p = page{Subject: "Welcome to notedesk!", Data: d}
			if d.ClientURL != "" {
				p.Button = &button{URL: template.URL(d.ClientURL), Label: "Open notedesk"}
			}
			text = fmt.Sprintf("Welcome, %s! Your notedesk account is ready.\n%s\n", d.Name, d.ClientURL)
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", templateName, err)
	}
	return Message{Subject: p.Subject, HTML: buf.String(), Text: text}, nil
}

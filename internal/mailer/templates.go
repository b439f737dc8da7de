package mailer

import (
	"fmt"
	"net/url"
	"strings"
	"text/template"
)

// Message is a rendered email ready for queuing.
type Message struct {
	Subject string
	Body    string
}

var verificationTmpl = template.Must(template.New("verification").Parse(
	`Hi {{.Username}},

Welcome to Inkpress! Please verify your email address by opening the link
below. The link expires in {{.ExpiresIn}}.

{{.Link}}

If you did not create an account, you can ignore this email.
`))

var passwordResetTmpl = template.Must(template.New("password_reset").Parse(
	`Hi {{.Username}},

We received a request to reset your password. Open the link below to choose a
new one. The link expires in {{.ExpiresIn}}.

{{.Link}}

If you did not request a reset, your password is unchanged and you can ignore
this email.
`))

type linkData struct {
	Username  string
	Link      string
	ExpiresIn string
}

// RenderVerification builds the email-verification message pointing at the
// frontend's verify page.
func RenderVerification(frontendURL, username, token string) (Message, error) {
	body, err := render(verificationTmpl, linkData{
		Username:  username,
		Link:      actionLink(frontendURL, "/verify-email", token),
		ExpiresIn: "24 hours",
	})
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: "Verify your email address", Body: body}, nil
}

// RenderPasswordReset builds the password-reset message pointing at the
// frontend's reset page.
func RenderPasswordReset(frontendURL, username, token string) (Message, error) {
	body, err := render(passwordResetTmpl, linkData{
		Username:  username,
		Link:      actionLink(frontendURL, "/reset-password", token),
		ExpiresIn: "1 hour",
	})
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: "Reset your password", Body: body}, nil
}

func render(tmpl *template.Template, data linkData) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("mailer: render %s: %w", tmpl.Name(), err)
	}
	return sb.String(), nil
}

func actionLink(frontendURL, path, token string) string {
	return fmt.Sprintf("%s%s?token=%s",
		strings.TrimRight(frontendURL, "/"), path, url.QueryEscape(token))
}

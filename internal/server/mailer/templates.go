package mailer

import (
	"bytes"
	"fmt"
	"text/template"
)

var templates = map[Kind]*template.Template{
	KindAccountActivation: template.Must(template.New("activation").Parse(
		`Hi {{.Name}},

Welcome to Microblog! Click the link below to activate your account:

{{.Link}}
`)),
	KindPasswordReset: template.Must(template.New("reset").Parse(
		`Hi {{.Name}},

To reset your password click the link below:

{{.Link}}

This link will expire soon. If you did not request a password reset,
ignore this email and your password will stay as it is.
`)),
	KindPasswordChanged: template.Must(template.New("changed").Parse(
		`Hi {{.Name}},

Your Microblog password was just changed. If this was not you, reset your
password right away.
`)),
}

var subjects = map[Kind]string{
	KindAccountActivation: "Account activation",
	KindPasswordReset:     "Password reset",
	KindPasswordChanged:   "Your password has been changed",
}

// Render returns the subject and plain-text body for msg.
func Render(msg Message) (subject, body string, err error) {
	tmpl, ok := templates[msg.Kind]
	if !ok {
		return "", "", fmt.Errorf("unknown message kind %q", msg.Kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, msg); err != nil {
		return "", "", err
	}
	return subjects[msg.Kind], buf.String(), nil
}

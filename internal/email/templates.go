package email

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
)

var funcs = template.FuncMap{
	"ordinal": humanize.Ordinal,
	"days":    func(n int) string { return english.Plural(n, "day", "") },
}

var (
	welcomeTemplate = template.Must(template.New("welcome").Funcs(funcs).Parse(`<!doctype html>
<html><body style="font-family:system-ui,sans-serif">
<h1>Welcome to ShipLoop, {{.Name}}!</h1>
<p>You're in. Ship something today and your streak starts at {{days 1}}.</p>
<p><a href="{{.SiteURL}}/dashboard">Open your dashboard</a></p>
</body></html>`))

	reminderTemplate = template.Must(template.New("reminder").Funcs(funcs).Parse(`<!doctype html>
<html><body style="font-family:system-ui,sans-serif">
<h1>Don't break the chain, {{.Name}}</h1>
{{if gt .Streak 0}}<p>You've shipped {{days .Streak}} in a row. Ship today to make it your {{ordinal .Next}}.</p>
{{else}}<p>Ship something today to start a new streak.</p>
{{end}}<p><a href="{{.SiteURL}}/dashboard">Log today's work</a></p>
</body></html>`))
)

type welcomeData struct {
	Name    string
	SiteURL string
}

type reminderData struct {
	Name    string
	Streak  int
	Next    int
	SiteURL string
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func reminderSubject(streak int) string {
	if streak <= 0 {
		return "Start a new ShipLoop streak today"
	}
	return fmt.Sprintf("Your %d-day streak ends at midnight", streak)
}

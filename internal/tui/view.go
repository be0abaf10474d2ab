package tui

import (
	"fmt"
	"strings"

	"sustainamind/carbontrack/internal/guard"
	"sustainamind/carbontrack/internal/history"
	"sustainamind/carbontrack/internal/track"
)

func trackForm() *form {
	specs := make([]fieldSpec, 0, len(track.Fields()))
	for _, f := range track.Fields() {
		spec := fieldSpec{key: f.Name, label: strings.ReplaceAll(f.Name, "_", " ")}
		switch f.Kind {
		case track.OptionalText:
			spec.placeholder = "optional"
		case track.Number:
			spec.placeholder = "number"
		case track.Count:
			spec.placeholder = "whole number"
		case track.Flag:
			spec.placeholder = "yes / no"
		}
		specs = append(specs, spec)
	}
	return newForm(formTrack, "Track your carbon footprint", specs...)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderNav() + "\n\n")

	switch m.mode {
	case modeDetails:
		b.WriteString(m.renderDetails())
	case modeConfirmClear:
		b.WriteString(m.renderProfile())
		b.WriteString("\n" + errorStyle.Render(history.ConfirmClearPrompt) + "  " + helpStyle.Render("y / n") + "\n")
	default:
		b.WriteString(m.renderBody())
	}

	b.WriteString("\n")
	if m.working() {
		b.WriteString(dimStyle.Render("Working…") + "\n")
	} else if m.status != "" {
		if m.isError {
			b.WriteString(errorStyle.Render(m.status) + "\n")
		} else {
			b.WriteString(successStyle.Render(m.status) + "\n")
		}
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderNav() string {
	parts := []string{titleStyle.Render("SustainaMind")}
	for i, l := range m.deps.Guard.Links() {
		label := fmt.Sprintf("%d %s", i+1, l.Label)
		if !l.Logout && l.View == m.view {
			parts = append(parts, navActiveStyle.Render(label))
			continue
		}
		parts = append(parts, navStyle.Render(label))
	}
	if sess, err := m.deps.Sessions.Load(); err == nil {
		parts = append(parts, dimStyle.Render("· "+displayName(sess)))
	}
	return strings.Join(parts, " ")
}

func (m Model) renderBody() string {
	switch m.view {
	case guard.Home:
		return headerStyle.Render("Know your footprint") + "\n\n" +
			"Estimate your monthly carbon footprint from everyday habits,\n" +
			"keep a history of every calculation and watch it go down.\n"
	case guard.About:
		return headerStyle.Render("About") + "\n\n" +
			"SustainaMind turns diet, travel, energy and waste habits into an\n" +
			"estimate in kg CO2e, computed by the SustainaMind service.\n"
	case guard.Profile:
		return m.renderProfile()
	}
	if m.form != nil {
		return m.form.view(m.height-8, m.mode == modeForm)
	}
	return ""
}

func (m Model) renderProfile() string {
	var b strings.Builder
	if sess, err := m.deps.Sessions.Load(); err == nil {
		b.WriteString(headerStyle.Render("Profile") + "\n")
		b.WriteString(labelStyle.Render("Name      ") + sess.DisplayName + "\n")
		b.WriteString(labelStyle.Render("Username  ") + sess.Username + "\n")
		b.WriteString(labelStyle.Render("Email     ") + sess.Email + "\n\n")
	}

	if m.form != nil && m.form.kind == formChangePassword {
		b.WriteString(m.form.view(0, m.mode == modeForm) + "\n")
	}

	b.WriteString(headerStyle.Render("Calculation History") + "\n")
	if len(m.entries) == 0 {
		if !m.deps.History.Pending(history.OpFetch) {
			b.WriteString(dimStyle.Render(history.EmptyMessage) + "\n")
		}
		return b.String()
	}
	for i, e := range m.entries {
		row := fmt.Sprintf("%-12s %s", e.FormatValue(), e.Timestamp.Local().Format("2006-01-02 15:04"))
		if e.HasDetails() {
			row += "  [inputs]"
		}
		if i == m.cursor {
			b.WriteString(selectedStyle.Render(row) + "\n")
			continue
		}
		b.WriteString(normalStyle.Render(row) + "\n")
	}
	return b.String()
}

func (m Model) renderDetails() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Input Details") + "\n\n")
	if m.details.Err != nil {
		b.WriteString(errorStyle.Render("These inputs could not be read.") + "\n")
		return modalStyle.Render(b.String())
	}
	for _, f := range m.details.Details.Fields {
		b.WriteString(labelStyle.Render(pad(strings.ToUpper(f.Label), 32)) + valueStyle.Render(f.Value) + "\n")
	}
	return modalStyle.Render(b.String())
}

func (m Model) renderHelp() string {
	switch m.mode {
	case modeForm:
		return helpStyle.Render("  Tab: next field  Enter: submit  Esc: leave form  Ctrl+C: quit")
	case modeDetails:
		return helpStyle.Render("  Esc: close")
	case modeConfirmClear:
		return helpStyle.Render("  y: delete all  n: cancel")
	}
	switch m.view {
	case guard.Profile:
		keys := "  ↑/↓: select  "
		if m.selectedHasDetails() {
			keys += "Enter: inputs  "
		}
		return helpStyle.Render(keys + "p: change password  c: clear history  r: refresh  1-9: navigate  q: quit")
	case guard.Login:
		return helpStyle.Render("  i: edit  s: sign up  f: forgot password  1-9: navigate  q: quit")
	case guard.SignUp, guard.ForgotPassword:
		return helpStyle.Render("  i: edit  l: log in  1-9: navigate  q: quit")
	}
	return helpStyle.Render("  1-9: navigate  q: quit")
}

func pad(s string, width int) string {
	runes := []rune(s)
	if len(runes) >= width {
		return string(runes[:width])
	}
	return s + strings.Repeat(" ", width-len(runes))
}

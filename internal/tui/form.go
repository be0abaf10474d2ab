package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type formKind int

const (
	formLogin formKind = iota + 1
	formSignUp
	formForgotPassword
	formChangePassword
	formTrack
)

type fieldSpec struct {
	key         string
	label       string
	placeholder string
	secret      bool
}

type formField struct {
	fieldSpec
	input textinput.Model
}

type form struct {
	kind   formKind
	title  string
	fields []formField
	focus  int
}

func newForm(kind formKind, title string, specs ...fieldSpec) *form {
	f := &form{kind: kind, title: title}
	for _, s := range specs {
		in := textinput.New()
		in.Placeholder = s.placeholder
		in.CharLimit = 200
		if s.secret {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '•'
		}
		f.fields = append(f.fields, formField{fieldSpec: s, input: in})
	}
	f.focusCurrent()
	return f
}

func (f *form) next() {
	f.blurCurrent()
	f.focus = (f.focus + 1) % len(f.fields)
	f.focusCurrent()
}

func (f *form) prev() {
	f.blurCurrent()
	f.focus = (f.focus - 1 + len(f.fields)) % len(f.fields)
	f.focusCurrent()
}

func (f *form) blurCurrent() {
	f.fields[f.focus].input.Blur()
}

func (f *form) focusCurrent() {
	f.fields[f.focus].input.Focus()
	f.fields[f.focus].input.CursorEnd()
}

func (f *form) blurAll() {
	for i := range f.fields {
		f.fields[i].input.Blur()
	}
}

func (f *form) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.fields[f.focus].input, cmd = f.fields[f.focus].input.Update(msg)
	return cmd
}

func (f *form) value(key string) string {
	for _, fld := range f.fields {
		if fld.key == key {
			return strings.TrimSpace(fld.input.Value())
		}
	}
	return ""
}

func (f *form) values() map[string]string {
	out := make(map[string]string, len(f.fields))
	for _, fld := range f.fields {
		if v := strings.TrimSpace(fld.input.Value()); v != "" {
			out[fld.key] = v
		}
	}
	return out
}

func (f *form) reset() {
	for i := range f.fields {
		f.fields[i].input.SetValue("")
	}
}

// view renders a window of rows around the focused field so long forms fit.
func (f *form) view(rows int, active bool) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(f.title) + "\n\n")

	start, end := 0, len(f.fields)
	if rows > 0 && len(f.fields) > rows {
		start = f.focus - rows/2
		if start < 0 {
			start = 0
		}
		end = start + rows
		if end > len(f.fields) {
			end = len(f.fields)
			start = end - rows
		}
	}

	for i := start; i < end; i++ {
		fld := f.fields[i]
		label := labelStyle.Render(pad(fld.label, 30))
		if active && i == f.focus {
			label = focusedLabelStyle.Render(pad(fld.label, 30))
		}
		b.WriteString(label + " " + fld.input.View() + "\n")
	}
	if end-start < len(f.fields) {
		b.WriteString(dimStyle.Render("  … more fields, Tab to move") + "\n")
	}
	return b.String()
}

func loginForm() *form {
	return newForm(formLogin, "Log in",
		fieldSpec{key: "email", label: "Email", placeholder: "you@example.com"},
		fieldSpec{key: "password", label: "Password", secret: true},
	)
}

func signUpForm() *form {
	return newForm(formSignUp, "Create account",
		fieldSpec{key: "name", label: "Full name"},
		fieldSpec{key: "username", label: "Username"},
		fieldSpec{key: "email", label: "Email", placeholder: "you@example.com"},
		fieldSpec{key: "password", label: "Password", secret: true},
	)
}

func forgotPasswordForm() *form {
	return newForm(formForgotPassword, "Reset password",
		fieldSpec{key: "email", label: "Email", placeholder: "you@example.com"},
		fieldSpec{key: "username", label: "Username"},
		fieldSpec{key: "new_password", label: "New password", secret: true},
	)
}

func changePasswordForm() *form {
	return newForm(formChangePassword, "Change password",
		fieldSpec{key: "current_password", label: "Current password", secret: true},
		fieldSpec{key: "new_password", label: "New password", secret: true},
	)
}

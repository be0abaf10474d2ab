// Package guard decides which view the client shows for a navigation request.
//
// It is UX gating only. The backend authorizes every request by bearer token,
// and a caller that edits the session file can reach any view.
package guard

import "fmt"

type View string

const (
	Home           View = "/"
	About          View = "/about"
	Login          View = "/login"
	SignUp         View = "/signup"
	ForgotPassword View = "/forgot-password"
	TrackCarbon    View = "/track-carbon"
	Profile        View = "/profile"
)

var protected = map[View]bool{
	TrackCarbon: true,
	Profile:     true,
}

var known = map[View]bool{
	Home:           true,
	About:          true,
	Login:          true,
	SignUp:         true,
	ForgotPassword: true,
	TrackCarbon:    true,
	Profile:        true,
}

func (v View) Protected() bool { return protected[v] }

func Parse(path string) (View, error) {
	v := View(path)
	if !known[v] {
		return "", fmt.Errorf("unknown view %q", path)
	}
	return v, nil
}

type Outcome int

const (
	Allowed Outcome = iota + 1
	Redirected
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case Redirected:
		return "redirected"
	default:
		return "unknown"
	}
}

// Decision is the result of one navigation. View is what gets rendered: the
// requested view when allowed, Login when redirected. The attempted view is
// not remembered.
type Decision struct {
	Outcome Outcome
	View    View
}

type SessionChecker interface {
	IsAuthenticated() bool
}

type Guard struct {
	sessions SessionChecker
}

func New(sessions SessionChecker) *Guard {
	return &Guard{sessions: sessions}
}

func (g *Guard) Navigate(v View) Decision {
	if v.Protected() && !g.authenticated() {
		return Decision{Outcome: Redirected, View: Login}
	}
	return Decision{Outcome: Allowed, View: v}
}

type Link struct {
	Label string
	View  View
	// Logout marks the entry that ends the session instead of navigating.
	Logout bool
}

// Links returns the navbar entries for the current session state.
func (g *Guard) Links() []Link {
	links := []Link{
		{Label: "Home", View: Home},
		{Label: "About", View: About},
	}
	if g.authenticated() {
		return append(links,
			Link{Label: "Track Carbon", View: TrackCarbon},
			Link{Label: "Profile", View: Profile},
			Link{Label: "Logout", Logout: true},
		)
	}
	return append(links, Link{Label: "Login", View: Login})
}

func (g *Guard) authenticated() bool {
	return g.sessions != nil && g.sessions.IsAuthenticated()
}

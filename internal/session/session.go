package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrNoSession = errors.New("no session")

// Storage keys. They match the keys the web client kept in localStorage so a
// migrated session file stays readable.
const (
	KeyToken    = "token"
	KeyUsername = "username"
	KeyName     = "name"
	KeyEmail    = "email"
)

var Keys = []string{KeyToken, KeyUsername, KeyName, KeyEmail}

type Session struct {
	Token       string `json:"token"`
	Username    string `json:"username"`
	DisplayName string `json:"name"`
	Email       string `json:"email"`
}

func (s Session) values() map[string]string {
	return map[string]string{
		KeyToken:    s.Token,
		KeyUsername: s.Username,
		KeyName:     s.DisplayName,
		KeyEmail:    s.Email,
	}
}

type ChangeKind int

const (
	Saved ChangeKind = iota + 1
	Cleared
)

func (k ChangeKind) String() string {
	switch k {
	case Saved:
		return "saved"
	case Cleared:
		return "cleared"
	default:
		return "unknown"
	}
}

type Change struct {
	Kind    ChangeKind
	Session Session
}

// KV is the persistent key-value medium a Store writes its four keys to.
// PutMany and DeleteMany must apply all keys or none.
type KV interface {
	GetMany(keys []string) (map[string]string, error)
	PutMany(values map[string]string) error
	DeleteMany(keys []string) error
}

// Store is the single owner of the client session. All reads and writes go
// through its lock so a half-written session is never visible.
type Store struct {
	kv KV

	mu sync.Mutex

	subMu   sync.RWMutex
	nextSub int
	subs    map[int]func(Change)
}

func NewStore(kv KV) (*Store, error) {
	if kv == nil {
		return nil, fmt.Errorf("session kv is required")
	}
	return &Store{
		kv:   kv,
		subs: make(map[int]func(Change)),
	}, nil
}

func (s *Store) Save(sess Session) error {
	if strings.TrimSpace(sess.Token) == "" {
		return fmt.Errorf("save session: token is required")
	}
	if strings.TrimSpace(sess.Username) == "" {
		return fmt.Errorf("save session: username is required")
	}

	s.mu.Lock()
	err := s.kv.PutMany(sess.values())
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	s.notify(Change{Kind: Saved, Session: sess})
	return nil
}

func (s *Store) Load() (Session, error) {
	s.mu.Lock()
	got, err := s.kv.GetMany(Keys)
	s.mu.Unlock()
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}

	for _, k := range Keys {
		if _, ok := got[k]; !ok {
			return Session{}, ErrNoSession
		}
	}
	if strings.TrimSpace(got[KeyToken]) == "" {
		return Session{}, ErrNoSession
	}
	return Session{
		Token:       got[KeyToken],
		Username:    got[KeyUsername],
		DisplayName: got[KeyName],
		Email:       got[KeyEmail],
	}, nil
}

func (s *Store) Clear() error {
	s.mu.Lock()
	err := s.kv.DeleteMany(Keys)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	s.notify(Change{Kind: Cleared})
	return nil
}

func (s *Store) IsAuthenticated() bool {
	_, err := s.Load()
	return err == nil
}

// Token returns the bearer token of the current session, or "" when absent.
func (s *Store) Token() string {
	sess, err := s.Load()
	if err != nil {
		return ""
	}
	return sess.Token
}

// Subscribe registers fn to be called after every Save and Clear. The returned
// func removes the subscription.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.subMu.RLock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

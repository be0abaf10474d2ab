package devserver

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrEmailTaken    = errors.New("email already registered")
)

type User struct {
	ID           int
	Name         string
	Username     string
	Email        string
	PasswordHash string
}

type Record struct {
	ID          int
	UserID      int
	CarbonValue float64
	Details     *string
	Timestamp   time.Time
}

// Store is the in-memory stand-in for the backend database.
type Store struct {
	mu      sync.RWMutex
	nextUID int
	nextRID int
	users   map[int]User
	records map[int]Record
}

func NewStore() *Store {
	return &Store{
		nextUID: 1,
		nextRID: 1,
		users:   make(map[int]User),
		records: make(map[int]Record),
	}
}

func (s *Store) CreateUser(u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username {
			return User{}, ErrUsernameTaken
		}
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return User{}, ErrEmailTaken
		}
	}
	u.ID = s.nextUID
	s.nextUID++
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UserByUsername(username string) (User, error) {
	return s.find(func(u User) bool { return u.Username == username })
}

func (s *Store) UserByEmail(email string) (User, error) {
	return s.find(func(u User) bool { return strings.EqualFold(u.Email, email) })
}

func (s *Store) UserByEmailAndUsername(email, username string) (User, error) {
	return s.find(func(u User) bool {
		return strings.EqualFold(u.Email, email) && u.Username == username
	})
}

func (s *Store) SetPasswordHash(userID int, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	s.users[userID] = u
	return nil
}

func (s *Store) AddRecord(r Record) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextRID
	s.nextRID++
	s.records[r.ID] = r
	return r
}

// Records returns the user's records, newest first.
func (s *Store) Records(userID int) []Record {
	s.mu.RLock()
	out := make([]Record, 0)
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func (s *Store) DeleteRecords(userID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.records {
		if r.UserID == userID {
			delete(s.records, id)
			n++
		}
	}
	return n
}

func (s *Store) find(match func(User) bool) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

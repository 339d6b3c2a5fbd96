package profile

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// StaticStore serves profiles from memory. Used by STORE_DRIVER=memory and tests.
type StaticStore struct {
	mu       sync.RWMutex
	profiles map[string]Local
}

func NewStaticStore(profiles ...Local) *StaticStore {
	s := &StaticStore{profiles: make(map[string]Local, len(profiles))}
	for _, p := range profiles {
		s.profiles[p.UserID] = p
	}
	return s
}

func (s *StaticStore) Put(p Local) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

func (s *StaticStore) Local(_ context.Context, userID string) (Local, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return Local{}, ErrProfileNotFound
	}
	return p, nil
}

// PostgresStore reads the profiles table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Local(ctx context.Context, userID string) (Local, error) {
	p := Local{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT email, first_name, last_name, user_type FROM profiles WHERE user_id = $1`, userID,
	).Scan(&p.Email, &p.FirstName, &p.LastName, &p.UserType)
	if errors.Is(err, sql.ErrNoRows) {
		return Local{}, ErrProfileNotFound
	}
	if err != nil {
		return Local{}, err
	}
	return p, nil
}

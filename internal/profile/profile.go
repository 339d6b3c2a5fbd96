package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var ErrProfileNotFound = errors.New("profile not found")

// Field names understood by Record.Field.
const (
	FieldEmail     = "email"
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldUserType  = "user_type"
)

// Local is the part of a profile this system owns.
type Local struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	UserType  string `json:"user_type"`
}

func (l Local) get(name string) string {
	switch name {
	case FieldEmail:
		return l.Email
	case FieldFirstName:
		return l.FirstName
	case FieldLastName:
		return l.LastName
	case FieldUserType:
		return l.UserType
	}
	return ""
}

// Record is a local profile plus the attributes an external identity
// provider reported for the same user. Local values win.
type Record struct {
	Local    Local             `json:"local"`
	Enriched map[string]string `json:"enriched,omitempty"`
}

// Field returns the local value for name when set, else the enriched one.
func (r Record) Field(name string) string {
	if v := r.Local.get(name); v != "" {
		return v
	}
	return r.Enriched[name]
}

func (r Record) Email() string    { return r.Field(FieldEmail) }
func (r Record) UserType() string { return r.Field(FieldUserType) }

func (r Record) DisplayName() string {
	first, last := r.Field(FieldFirstName), r.Field(FieldLastName)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	default:
		return last
	}
}

// LocalStore loads locally owned profile fields.
type LocalStore interface {
	Local(ctx context.Context, userID string) (Local, error)
}

// Source fetches enrichment attributes from an identity provider.
type Source interface {
	Fetch(ctx context.Context, userID string) (map[string]string, error)
}

type Service struct {
	local  LocalStore
	source Source
	cache  *ttlCache
	logger *zap.Logger
}

type Option func(*Service)

func WithSource(src Source, ttl time.Duration) Option {
	return func(s *Service) {
		s.source = src
		s.cache = newTTLCache(ttl, time.Now)
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(local LocalStore, opts ...Option) *Service {
	s := &Service{local: local, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "profile"))
	return s
}

// Get assembles the record for userID. A missing local profile is an error;
// a failing enrichment source only drops the overlay.
func (s *Service) Get(ctx context.Context, userID string) (Record, error) {
	local, err := s.local.Local(ctx, userID)
	if err != nil {
		return Record{}, fmt.Errorf("load profile %s: %w", userID, err)
	}
	rec := Record{Local: local}
	if s.source == nil {
		return rec, nil
	}

	if cached, ok := s.cache.get(userID); ok {
		rec.Enriched = cached
		return rec, nil
	}
	attrs, err := s.source.Fetch(ctx, userID)
	if err != nil {
		s.logger.Warn("profile enrichment failed", zap.String("user_id", userID), zap.Error(err))
		return rec, nil
	}
	s.cache.put(userID, attrs)
	rec.Enriched = attrs
	return rec, nil
}

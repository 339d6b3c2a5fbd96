package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	attrs map[string]string
	err   error
	calls int
}

func (s *countingSource) Fetch(context.Context, string) (map[string]string, error) {
	s.calls++
	return s.attrs, s.err
}

func TestRecordField_LocalWins(t *testing.T) {
	rec := Record{
		Local: Local{UserID: "u1", Email: "local@example.com"},
		Enriched: map[string]string{
			FieldEmail:     "remote@example.com",
			FieldFirstName: "Ada",
			"phone":        "+33100000000",
		},
	}

	assert.Equal(t, "local@example.com", rec.Email())
	assert.Equal(t, "Ada", rec.Field(FieldFirstName))
	assert.Equal(t, "+33100000000", rec.Field("phone"))
	assert.Equal(t, "", rec.Field(FieldUserType))
	assert.Equal(t, "Ada", rec.DisplayName())

	rec.Local.LastName = "Lovelace"
	assert.Equal(t, "Ada Lovelace", rec.DisplayName())
}

func TestServiceGet_LocalOnly(t *testing.T) {
	svc := NewService(NewStaticStore(Local{UserID: "u1", Email: "a@example.com", UserType: "student"}))

	rec, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", rec.Email())
	assert.Equal(t, "student", rec.UserType())
	assert.Nil(t, rec.Enriched)
}

func TestServiceGet_NotFound(t *testing.T) {
	svc := NewService(NewStaticStore())

	_, err := svc.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestServiceGet_EnrichmentCached(t *testing.T) {
	src := &countingSource{attrs: map[string]string{FieldFirstName: "Ada"}}
	svc := NewService(NewStaticStore(Local{UserID: "u1"}), WithSource(src, time.Minute))

	for j := 0; j < 3; j++ {
		rec, err := svc.Get(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "Ada", rec.DisplayName())
	}
	assert.Equal(t, 1, src.calls)
}

func TestServiceGet_EnrichmentFailureKeepsLocal(t *testing.T) {
	src := &countingSource{err: errors.New("provider down")}
	svc := NewService(NewStaticStore(Local{UserID: "u1", Email: "a@example.com"}), WithSource(src, time.Minute))

	rec, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", rec.Email())
	assert.Nil(t, rec.Enriched)

	// failures are not cached
	_, err = svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestTTLCache_Expires(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := newTTLCache(time.Minute, func() time.Time { return now })

	c.put("u1", map[string]string{"k": "v"})
	got, ok := c.get("u1")
	require.True(t, ok)
	got["k"] = "mutated"

	again, ok := c.get("u1")
	require.True(t, ok)
	assert.Equal(t, "v", again["k"])

	now = now.Add(time.Minute)
	_, ok = c.get("u1")
	assert.False(t, ok)
	assert.Empty(t, c.entries)
}

func TestTTLCache_ZeroTTLDisables(t *testing.T) {
	c := newTTLCache(0, time.Now)
	c.put("u1", map[string]string{"k": "v"})
	_, ok := c.get("u1")
	assert.False(t, ok)
}

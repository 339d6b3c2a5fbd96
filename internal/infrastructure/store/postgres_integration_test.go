package store

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ticket-shotgun/internal/domain/order"
	"github.com/example/ticket-shotgun/internal/domain/sale"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := ConnectPostgres(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, EnsureSchema(context.Background(), db))
	return db
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	st := NewPostgresStore(openTestDB(t))
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	saleID, groupID, itemID := "sale-"+suffix, "group-"+suffix, "item-"+suffix
	now := time.Now().UTC().Truncate(time.Microsecond)

	o := order.New("owner-"+suffix, saleID, now)
	_, err := o.AddLine(itemID, 3, now)
	require.NoError(t, err)

	scope := Scope{SaleID: saleID, GroupIDs: []string{groupID}, ItemIDs: []string{itemID}, OrderIDs: []string{o.ID}}
	require.NoError(t, st.WithScopeLock(ctx, scope, func(tx Tx) error {
		if err := tx.PutSale(ctx, &sale.Sale{
			ID: saleID, Name: "Gala", IsActive: true,
			BeginAt: now.Add(-time.Hour), EndAt: now.Add(time.Hour), MaxPaymentDate: now.Add(2 * time.Hour),
			MaxItemQuantity: sale.Limit(10),
		}); err != nil {
			return err
		}
		if err := tx.PutGroup(ctx, &sale.ItemGroup{ID: groupID, Name: "Places", Quantity: sale.Limit(5)}); err != nil {
			return err
		}
		if err := tx.PutItem(ctx, &sale.Item{
			ID: itemID, SaleID: saleID, GroupID: &groupID, Name: "Standard",
			IsActive: true, Price: 1500, UserTypes: []string{"student"},
			Fields: []sale.ItemField{{ID: "attendee", Name: "Attendee", Type: sale.FieldText, Editable: true}},
		}); err != nil {
			return err
		}
		return tx.SaveOrder(ctx, o)
	}))

	require.NoError(t, st.View(ctx, func(tx Tx) error {
		got, err := tx.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusOngoing, got.Status)
		require.Len(t, got.Lines, 1)
		assert.Equal(t, 3, got.Lines[0].Quantity)

		item, err := tx.GetItem(ctx, itemID)
		require.NoError(t, err)
		assert.Equal(t, groupID, item.Group())
		assert.Equal(t, []string{"student"}, item.UserTypes)
		assert.Equal(t, []sale.ItemField{{ID: "attendee", Name: "Attendee", Type: sale.FieldText, Editable: true}}, item.Fields)

		booked, err := tx.BookedLines(ctx, saleID, "")
		require.NoError(t, err)
		assert.Empty(t, booked)
		return nil
	}))

	require.NoError(t, st.WithScopeLock(ctx, OrderScope(o.ID), func(tx Tx) error {
		if err := tx.UpdateOrderStatus(ctx, o.ID, order.StatusPaid, now.Add(time.Minute)); err != nil {
			return err
		}
		tickets := o.NewTickets(now)
		tickets[0].Fields = map[string]string{"attendee": "Ada"}
		if err := tx.InsertTickets(ctx, tickets); err != nil {
			return err
		}
		return tx.SetTicketField(ctx, tickets[1].ID, "attendee", "Grace")
	}))

	require.NoError(t, st.View(ctx, func(tx Tx) error {
		booked, err := tx.BookedLines(ctx, saleID, "")
		require.NoError(t, err)
		require.Len(t, booked, 1)
		assert.Equal(t, groupID, booked[0].GroupID)
		assert.Equal(t, order.StatusPaid, booked[0].Status)

		excluded, err := tx.BookedLines(ctx, saleID, o.ID)
		require.NoError(t, err)
		assert.Empty(t, excluded)

		tickets, err := tx.ListTickets(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, tickets, 3)
		values := map[string]int{}
		for _, tk := range tickets {
			values[tk.Fields["attendee"]]++
		}
		assert.Equal(t, map[string]int{"Ada": 1, "Grace": 1, "": 1}, values)
		return nil
	}))

	err = st.View(ctx, func(tx Tx) error {
		_, err := tx.GetOrder(ctx, "missing-"+suffix)
		return err
	})
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestPostgresStore_ScopeLocksSerialize(t *testing.T) {
	st := NewPostgresStore(openTestDB(t))
	ctx := context.Background()
	scope := Scope{SaleID: "lock-" + uuid.NewString()}

	held := make(chan struct{})
	release := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		first <- st.WithScopeLock(ctx, scope, func(Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	second := make(chan error, 1)
	go func() {
		second <- st.WithScopeLock(ctx, scope, func(Tx) error { return nil })
	}()
	select {
	case <-second:
		t.Fatal("second unit ran while the scope was held")
	case <-time.After(100 * time.Millisecond):
	}

	other := st.WithScopeLock(ctx, Scope{SaleID: "other-" + uuid.NewString()}, func(Tx) error { return nil })
	assert.NoError(t, other, "disjoint scopes must not wait")

	close(release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)
}

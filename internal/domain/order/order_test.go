package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNew_StartsOngoing(t *testing.T) {
	o := New("user-1", "sale-1", now)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, StatusOngoing, o.Status)
	assert.Empty(t, o.Lines)
	assert.Equal(t, now, o.CreatedAt)
}

func TestOrder_AddLine_MergesSameItem(t *testing.T) {
	o := New("user-1", "sale-1", now)

	first, err := o.AddLine("item-1", 2, now)
	require.NoError(t, err)
	second, err := o.AddLine("item-1", 3, now)
	require.NoError(t, err)
	_, err = o.AddLine("item-2", 1, now)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Quantity)
	assert.Len(t, o.Lines, 2)
	assert.Equal(t, 6, o.TotalQuantity())
	assert.Equal(t, []string{"item-1", "item-2"}, o.ItemIDs())
}

func TestOrder_ItemIDs_Distinct(t *testing.T) {
	// lines loaded from storage are not merged
	o := New("user-1", "sale-1", now)
	o.Lines = []OrderLine{
		{ID: "l1", OrderID: o.ID, ItemID: "item-2", Quantity: 1},
		{ID: "l2", OrderID: o.ID, ItemID: "item-1", Quantity: 2},
		{ID: "l3", OrderID: o.ID, ItemID: "item-2", Quantity: 1},
	}

	assert.Equal(t, []string{"item-2", "item-1"}, o.ItemIDs())
}

func TestOrder_AddLine_Rejections(t *testing.T) {
	o := New("user-1", "sale-1", now)

	_, err := o.AddLine("item-1", 0, now)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	o.Status = StatusAwaitingPayment
	_, err = o.AddLine("item-1", 1, now)
	assert.ErrorIs(t, err, ErrOrderLocked)
}

func TestOrder_RemoveLine(t *testing.T) {
	o := New("user-1", "sale-1", now)
	line, _ := o.AddLine("item-1", 1, now)

	assert.ErrorIs(t, o.RemoveLine("missing", now), ErrLineNotFound)
	require.NoError(t, o.RemoveLine(line.ID, now))
	assert.Empty(t, o.Lines)
}

func TestOrder_Clone_IsDeep(t *testing.T) {
	o := New("user-1", "sale-1", now)
	_, _ = o.AddLine("item-1", 1, now)

	c := o.Clone()
	c.Lines[0].Quantity = 9

	assert.Equal(t, 1, o.Lines[0].Quantity)
}

func TestOrder_TransitionTo(t *testing.T) {
	o := New("user-1", "sale-1", now)
	later := now.Add(time.Minute)

	require.NoError(t, o.TransitionTo(StatusAwaitingPayment, later))
	assert.Equal(t, later, o.UpdatedAt)

	err := o.TransitionTo(StatusOngoing, later)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusAwaitingPayment, o.Status)
}

func TestOrder_NewTickets_OnePerUnit(t *testing.T) {
	o := New("user-1", "sale-1", now)
	l1, _ := o.AddLine("item-1", 3, now)
	l2, _ := o.AddLine("item-2", 2, now)

	tickets := o.NewTickets(now)

	require.Len(t, tickets, 5)
	perLine := map[string]int{}
	ids := map[string]bool{}
	for _, tk := range tickets {
		perLine[tk.OrderLineID]++
		ids[tk.ID] = true
	}
	assert.Equal(t, 3, perLine[l1.ID])
	assert.Equal(t, 2, perLine[l2.ID])
	assert.Len(t, ids, 5, "ticket ids must be unique")
}

// ============================================
// Expiry Timer Tests
// ============================================

func TestTimeouts_EffectiveStatus(t *testing.T) {
	timeouts := Timeouts{Ongoing: time.Hour, Validation: 10 * time.Minute, Payment: 15 * time.Minute}

	tests := []struct {
		name     string
		status   Status
		age      time.Duration
		expected Status
	}{
		{"fresh ongoing", StatusOngoing, 30 * time.Minute, StatusOngoing},
		{"stale ongoing", StatusOngoing, 2 * time.Hour, StatusExpired},
		{"stale validation", StatusAwaitingValidation, 11 * time.Minute, StatusExpired},
		{"fresh payment", StatusAwaitingPayment, 15 * time.Minute, StatusAwaitingPayment},
		{"stale payment", StatusAwaitingPayment, 16 * time.Minute, StatusExpired},
		{"validated has no timer", StatusValidated, 48 * time.Hour, StatusValidated},
		{"paid never expires", StatusPaid, 48 * time.Hour, StatusPaid},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{Status: tt.status, UpdatedAt: now.Add(-tt.age)}
			assert.Equal(t, tt.expected, timeouts.EffectiveStatus(o, now))
		})
	}
}

func TestTimeouts_ZeroDisablesTimer(t *testing.T) {
	o := &Order{Status: StatusAwaitingPayment, UpdatedAt: now.Add(-24 * time.Hour)}

	assert.Equal(t, StatusAwaitingPayment, Timeouts{}.EffectiveStatus(o, now))
}

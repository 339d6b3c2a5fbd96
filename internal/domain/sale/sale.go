package sale

import (
	"errors"
	"slices"
	"time"
)

var (
	ErrSaleNotFound  = errors.New("sale not found")
	ErrGroupNotFound = errors.New("item group not found")
	ErrItemNotFound  = errors.New("item not found")
)

// Sale is a timed sales window owning items directly and through groups.
// A nil MaxItemQuantity means the sale has no aggregate cap.
type Sale struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	IsActive        bool      `json:"is_active"`
	BeginAt         time.Time `json:"begin_at"`
	EndAt           time.Time `json:"end_at"`
	MaxPaymentDate  time.Time `json:"max_payment_date"`
	MaxItemQuantity *int      `json:"max_item_quantity,omitempty"`
}

// IsOngoing reports whether orders of the sale may be paid at now.
func (s *Sale) IsOngoing(now time.Time) bool {
	return !now.Before(s.BeginAt) && !now.After(s.MaxPaymentDate)
}

// ItemGroup shares a quantity cap across its member items.
type ItemGroup struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Quantity   *int   `json:"quantity,omitempty"`
	MaxPerUser *int   `json:"max_per_user,omitempty"`
}

// HasCaps reports whether any limit applies to the group.
func (g *ItemGroup) HasCaps() bool {
	return g.Quantity != nil || g.MaxPerUser != nil
}

type Item struct {
	ID         string  `json:"id"`
	SaleID     string  `json:"sale_id"`
	GroupID    *string `json:"group_id,omitempty"`
	Name       string  `json:"name"`
	IsActive   bool    `json:"is_active"`
	Quantity   *int    `json:"quantity,omitempty"`
	MaxPerUser *int    `json:"max_per_user,omitempty"`
	Price      int     `json:"price"`
	// UserTypes restricts who may buy the item. Empty means everyone.
	UserTypes []string `json:"user_types,omitempty"`
	// Fields are the custom values carried by each ticket of the item.
	Fields []ItemField `json:"fields,omitempty"`
}

// HasCaps reports whether any limit applies to the item itself.
func (i *Item) HasCaps() bool {
	return i.Quantity != nil || i.MaxPerUser != nil
}

// Group returns the item's group id, or "" when the item is ungrouped.
func (i *Item) Group() string {
	if i.GroupID == nil {
		return ""
	}
	return *i.GroupID
}

// AllowsUserType reports whether a buyer of the given type may order the item.
func (i *Item) AllowsUserType(userType string) bool {
	if len(i.UserTypes) == 0 {
		return true
	}
	return slices.Contains(i.UserTypes, userType)
}

// Limit is a helper for building optional caps.
func Limit(n int) *int {
	return &n
}

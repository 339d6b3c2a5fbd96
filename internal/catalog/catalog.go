package catalog

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/ticket-shotgun/internal/domain/sale"
	"github.com/example/ticket-shotgun/internal/infrastructure/store"
)

// File is the YAML layout of a sale catalogue: shared item groups and the
// sales with their items.
type File struct {
	Groups []Group `yaml:"groups,omitempty"`
	Sales  []Sale  `yaml:"sales"`
}

type Group struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Quantity   *int   `yaml:"quantity,omitempty"`
	MaxPerUser *int   `yaml:"max_per_user,omitempty"`
}

type Sale struct {
	ID              string    `yaml:"id"`
	Name            string    `yaml:"name"`
	Active          bool      `yaml:"active"`
	BeginAt         time.Time `yaml:"begin_at"`
	EndAt           time.Time `yaml:"end_at"`
	MaxPaymentDate  time.Time `yaml:"max_payment_date"`
	MaxItemQuantity *int      `yaml:"max_item_quantity,omitempty"`
	Items           []Item    `yaml:"items"`
}

type Item struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Group      string   `yaml:"group,omitempty"`
	Active     *bool    `yaml:"active,omitempty"`
	Quantity   *int     `yaml:"quantity,omitempty"`
	MaxPerUser *int     `yaml:"max_per_user,omitempty"`
	Price      int      `yaml:"price"`
	UserTypes  []string `yaml:"user_types,omitempty"`
	Fields     []Field  `yaml:"fields,omitempty"`
}

// Field declares a custom ticket value. Type defaults to text and fields are
// editable unless stated otherwise.
type Field struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Type     string `yaml:"type,omitempty"`
	Default  string `yaml:"default,omitempty"`
	Editable *bool  `yaml:"editable,omitempty"`
}

func (f Field) itemField() sale.ItemField {
	t := sale.FieldType(f.Type)
	if t == "" {
		t = sale.FieldText
	}
	return sale.ItemField{
		ID:       f.ID,
		Name:     f.Name,
		Type:     t,
		Default:  f.Default,
		Editable: f.Editable == nil || *f.Editable,
	}
}

// LoadFile reads and validates a catalogue file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks ids are unique, references resolve and dates are ordered.
func (f *File) Validate() error {
	groups := make(map[string]bool, len(f.Groups))
	used := make(map[string]bool, len(f.Groups))
	for _, g := range f.Groups {
		if g.ID == "" {
			return fmt.Errorf("group %q: id is required", g.Name)
		}
		if groups[g.ID] {
			return fmt.Errorf("group %q: duplicate id", g.ID)
		}
		if negative(g.Quantity) || negative(g.MaxPerUser) {
			return fmt.Errorf("group %q: limits must not be negative", g.ID)
		}
		groups[g.ID] = true
	}

	sales := make(map[string]bool, len(f.Sales))
	items := make(map[string]bool)
	for _, s := range f.Sales {
		if s.ID == "" {
			return fmt.Errorf("sale %q: id is required", s.Name)
		}
		if sales[s.ID] {
			return fmt.Errorf("sale %q: duplicate id", s.ID)
		}
		sales[s.ID] = true
		if s.EndAt.Before(s.BeginAt) || s.MaxPaymentDate.Before(s.EndAt) {
			return fmt.Errorf("sale %q: expected begin_at <= end_at <= max_payment_date", s.ID)
		}
		if negative(s.MaxItemQuantity) {
			return fmt.Errorf("sale %q: max_item_quantity must not be negative", s.ID)
		}
		for _, it := range s.Items {
			if it.ID == "" {
				return fmt.Errorf("sale %q: item %q: id is required", s.ID, it.Name)
			}
			if items[it.ID] {
				return fmt.Errorf("item %q: duplicate id", it.ID)
			}
			items[it.ID] = true
			if it.Group != "" {
				if !groups[it.Group] {
					return fmt.Errorf("item %q: unknown group %q", it.ID, it.Group)
				}
				used[it.Group] = true
			}
			if negative(it.Quantity) || negative(it.MaxPerUser) || it.Price < 0 {
				return fmt.Errorf("item %q: limits and price must not be negative", it.ID)
			}
			if err := validateFields(it); err != nil {
				return err
			}
		}
	}
	for _, g := range f.Groups {
		if !used[g.ID] {
			return fmt.Errorf("group %q: not used by any item", g.ID)
		}
	}
	return nil
}

func validateFields(it Item) error {
	seen := make(map[string]bool, len(it.Fields))
	for _, f := range it.Fields {
		if f.ID == "" {
			return fmt.Errorf("item %q: field %q: id is required", it.ID, f.Name)
		}
		if seen[f.ID] {
			return fmt.Errorf("item %q: field %q: duplicate id", it.ID, f.ID)
		}
		seen[f.ID] = true
		field := f.itemField()
		if !field.Type.Known() {
			return fmt.Errorf("item %q: field %q: unknown type %q", it.ID, f.ID, f.Type)
		}
		if err := field.Check(f.Default); err != nil {
			return fmt.Errorf("item %q: default: %w", it.ID, err)
		}
	}
	return nil
}

func negative(n *int) bool {
	return n != nil && *n < 0
}

// Apply writes the catalogue, one unit of work per sale holding the sale,
// its groups and its items.
func (f *File) Apply(ctx context.Context, st store.Store) error {
	groups := make(map[string]Group, len(f.Groups))
	for _, g := range f.Groups {
		groups[g.ID] = g
	}

	for _, s := range f.Sales {
		s := s
		scope := store.Scope{SaleID: s.ID}
		for _, it := range s.Items {
			scope.ItemIDs = append(scope.ItemIDs, it.ID)
			if it.Group != "" {
				scope.GroupIDs = append(scope.GroupIDs, it.Group)
			}
		}

		err := st.WithScopeLock(ctx, scope, func(tx store.Tx) error {
			if err := tx.PutSale(ctx, &sale.Sale{
				ID:              s.ID,
				Name:            s.Name,
				IsActive:        s.Active,
				BeginAt:         s.BeginAt,
				EndAt:           s.EndAt,
				MaxPaymentDate:  s.MaxPaymentDate,
				MaxItemQuantity: s.MaxItemQuantity,
			}); err != nil {
				return err
			}
			for _, id := range scope.GroupIDs {
				g := groups[id]
				if err := tx.PutGroup(ctx, &sale.ItemGroup{ID: g.ID, Name: g.Name, Quantity: g.Quantity, MaxPerUser: g.MaxPerUser}); err != nil {
					return err
				}
			}
			for _, it := range s.Items {
				item := &sale.Item{
					ID:         it.ID,
					SaleID:     s.ID,
					Name:       it.Name,
					IsActive:   it.Active == nil || *it.Active,
					Quantity:   it.Quantity,
					MaxPerUser: it.MaxPerUser,
					Price:      it.Price,
					UserTypes:  it.UserTypes,
				}
				for _, f := range it.Fields {
					item.Fields = append(item.Fields, f.itemField())
				}
				if it.Group != "" {
					group := it.Group
					item.GroupID = &group
				}
				if err := tx.PutItem(ctx, item); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("apply sale %s: %w", s.ID, err)
		}
	}
	return nil
}

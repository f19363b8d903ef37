package extension

import (
	"sort"

	"github.com/dshills/apkedit/internal/registry"
)

// Contribution is a UI item a plugin adds to the toolbar, the activity bar or
// the editor context menu. Selecting it executes Command.
type Contribution struct {
	ID      string
	Title   string
	Icon    string
	Command string
	Group   string
	Order   int
}

// Contributions is the registry behind one UI surface.
type Contributions struct {
	reg *registry.Registry[string, Contribution]
}

// NewContributions creates an empty UI contribution registry named name.
func NewContributions(name string) *Contributions {
	return &Contributions{
		reg: registry.New(registry.WithName[string, Contribution](name)),
	}
}

// Name returns the surface name.
func (c *Contributions) Name() string {
	return c.reg.Name()
}

// Register adds item. Items are keyed by ID; a later item with the same ID
// hides the earlier one until it is removed.
func (c *Contributions) Register(item Contribution, owner string) registry.ID {
	return c.reg.Register(item.ID, item, owner)
}

// Lookup returns the visible item with id.
func (c *Contributions) Lookup(id string) (Contribution, bool) {
	return c.reg.Lookup(id)
}

// Items returns the visible items sorted by group, then order, then title.
func (c *Contributions) Items() []Contribution {
	keys := c.reg.Keys()
	items := make([]Contribution, 0, len(keys))
	for _, k := range keys {
		if item, ok := c.reg.Lookup(k); ok {
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.Title < b.Title
	})
	return items
}

// Remove removes specific registrations.
func (c *Contributions) Remove(ids ...registry.ID) int {
	return c.reg.Remove(ids...)
}

// UnregisterByOwner removes every item registered by owner.
func (c *Contributions) UnregisterByOwner(owner string) int {
	return c.reg.UnregisterByOwner(owner)
}

// Len returns the number of registrations.
func (c *Contributions) Len() int {
	return c.reg.Len()
}

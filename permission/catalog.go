package permission

import (
	"errors"
	"sort"
	"sync"
)

// SystemPermission is a capability descriptor published by the backend for a
// role context. IDs are what role-assignment requests carry.
type SystemPermission struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

var (
	// ErrCatalogFrozen is returned when registering into a frozen catalog.
	ErrCatalogFrozen = errors.New("permission catalog frozen")
	// ErrCapabilityUnknown is returned when a capability name has no ID.
	ErrCapabilityUnknown = errors.New("capability not in catalog")
)

// Catalog maps capability names to backend permission IDs and back.
type Catalog struct {
	mu       sync.RWMutex
	nameToID map[string]uint
	idToName map[uint]string
	frozen   bool
}

// NewCatalog builds a frozen catalog from backend descriptors. Entries with
// an empty name are skipped; a duplicate name or ID is an error.
func NewCatalog(perms []SystemPermission) (*Catalog, error) {
	c := &Catalog{
		nameToID: make(map[string]uint, len(perms)),
		idToName: make(map[uint]string, len(perms)),
	}
	for _, p := range perms {
		if NormalizeCapability(p.Name) == "" {
			continue
		}
		if err := c.Register(p); err != nil {
			return nil, err
		}
	}
	c.Freeze()
	return c, nil
}

// Register adds a descriptor. Must be called before [Catalog.Freeze].
func (c *Catalog) Register(p SystemPermission) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return ErrCatalogFrozen
	}

	name := NormalizeCapability(p.Name)
	if name == "" {
		return errors.New("capability name cannot be empty")
	}
	if _, exists := c.nameToID[name]; exists {
		return errors.New("capability already registered: " + name)
	}
	if _, exists := c.idToName[p.ID]; exists {
		return errors.New("capability id already registered")
	}

	c.nameToID[name] = p.ID
	c.idToName[p.ID] = name
	return nil
}

// ID returns the backend ID for the named capability.
func (c *Catalog) ID(name string) (uint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.nameToID[NormalizeCapability(name)]
	return id, ok
}

// Name returns the capability name for id.
func (c *Catalog) Name(id uint) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.idToName[id]
	return name, ok
}

// ResolveIDs maps capability names to IDs in input order. The first unknown
// name fails the whole call.
func (c *Catalog) ResolveIDs(names []string) ([]uint, error) {
	out := make([]uint, 0, len(names))
	for _, name := range names {
		id, ok := c.ID(name)
		if !ok {
			return nil, errors.Join(ErrCapabilityUnknown, errors.New(name))
		}
		out = append(out, id)
	}
	return out, nil
}

// Names returns all registered capability names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.nameToID))
	for name := range c.nameToID {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Freeze prevents further registrations.
func (c *Catalog) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// Count returns the number of registered capabilities.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nameToID)
}

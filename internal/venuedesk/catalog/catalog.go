// Package catalog provides room and product definitions plus date
// availability for the venue.  It is consumed only by step bodies — the
// router never asks the catalog anything.
//
// The file-backed implementation loads a single YAML document:
//
//	rooms:
//	  - id: garden-hall
//	    name: Garden Hall
//	    capacity: 120
//	    features: [stage, projector]
//	    daily_rate: 1800
//	  - id: atelier
//	    name: Atelier
//	    capacity: 40
//	    daily_rate: 650
//	products:
//	  - id: welcome-drinks
//	    name: Welcome Drinks
//	    unit_price: 9.5
//	    per_person: true
//	blocked_dates:
//	  garden-hall: ["2025-12-24", "2025-12-31"]
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Room is one bookable space.
type Room struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Capacity  int      `yaml:"capacity"`
	Features  []string `yaml:"features"`
	DailyRate float64  `yaml:"daily_rate"`
}

// Product is an optional add-on sold with a booking.
type Product struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	UnitPrice float64 `yaml:"unit_price"`
	PerPerson bool    `yaml:"per_person"`
}

// Catalog answers room/product lookups and date availability.
// Implementations must be safe for concurrent use; the engine treats catalog
// data as read-only reference data shared across bookings.
type Catalog interface {
	// Rooms returns all rooms, in file order.
	Rooms() []Room

	// RoomByID returns the room with the given ID, or false when unknown.
	RoomByID(id string) (Room, bool)

	// MatchRoomName resolves a free-text mention ("the garden hall") to a
	// room, using word-boundary insensitive matching on ID and name.
	// Returns false when no room name is bound in the text.
	MatchRoomName(text string) (Room, bool)

	// Products returns all products, in file order.
	Products() []Product

	// ProductByID returns the product with the given ID, or false when unknown.
	ProductByID(id string) (Product, bool)

	// Available reports whether the room can be booked on the ISO date.
	Available(roomID, date string) bool
}

// fileCatalog is the YAML-file implementation of Catalog.  The file is read
// once at construction; the loaded data is immutable afterwards.
type fileCatalog struct {
	rooms    []Room
	products []Product
	blocked  map[string]map[string]bool // roomID → date → blocked
}

type catalogFile struct {
	Rooms        []Room              `yaml:"rooms"`
	Products     []Product           `yaml:"products"`
	BlockedDates map[string][]string `yaml:"blocked_dates"`
}

// LoadFile reads and validates a catalog YAML file.
func LoadFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Load(data)
}

// Load parses catalog YAML from memory.
func Load(data []byte) (Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalog: parse yaml: %w", err)
	}

	seen := make(map[string]bool, len(file.Rooms))
	for _, r := range file.Rooms {
		if r.ID == "" {
			return nil, fmt.Errorf("catalog: room with empty id (name %q)", r.Name)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("catalog: duplicate room id %q", r.ID)
		}
		if r.Capacity <= 0 {
			return nil, fmt.Errorf("catalog: room %q has non-positive capacity", r.ID)
		}
		seen[r.ID] = true
	}
	for _, p := range file.Products {
		if p.ID == "" {
			return nil, fmt.Errorf("catalog: product with empty id (name %q)", p.Name)
		}
	}

	blocked := make(map[string]map[string]bool, len(file.BlockedDates))
	for roomID, dates := range file.BlockedDates {
		m := make(map[string]bool, len(dates))
		for _, d := range dates {
			m[d] = true
		}
		blocked[roomID] = m
	}

	return &fileCatalog{
		rooms:    file.Rooms,
		products: file.Products,
		blocked:  blocked,
	}, nil
}

func (c *fileCatalog) Rooms() []Room { return c.rooms }

func (c *fileCatalog) RoomByID(id string) (Room, bool) {
	for _, r := range c.rooms {
		if strings.EqualFold(r.ID, id) {
			return r, true
		}
	}
	return Room{}, false
}

func (c *fileCatalog) MatchRoomName(text string) (Room, bool) {
	lower := strings.ToLower(text)
	for _, r := range c.rooms {
		if containsToken(lower, strings.ToLower(r.Name)) || containsToken(lower, strings.ToLower(r.ID)) {
			return r, true
		}
	}
	return Room{}, false
}

func (c *fileCatalog) Products() []Product { return c.products }

func (c *fileCatalog) ProductByID(id string) (Product, bool) {
	for _, p := range c.products {
		if strings.EqualFold(p.ID, id) {
			return p, true
		}
	}
	return Product{}, false
}

func (c *fileCatalog) Available(roomID, date string) bool {
	if _, ok := c.RoomByID(roomID); !ok {
		return false
	}
	return !c.blocked[strings.ToLower(roomID)][date]
}

// containsToken reports whether needle occurs in haystack on word boundaries.
// Hyphens inside needle match both hyphens and spaces in haystack so that
// "garden-hall" binds the mention "garden hall".
func containsToken(haystack, needle string) bool {
	variants := []string{needle}
	if strings.Contains(needle, "-") {
		variants = append(variants, strings.ReplaceAll(needle, "-", " "))
	}
	for _, v := range variants {
		idx := 0
		for {
			i := strings.Index(haystack[idx:], v)
			if i < 0 {
				break
			}
			start := idx + i
			end := start + len(v)
			beforeOK := start == 0 || !isWordByte(haystack[start-1])
			afterOK := end >= len(haystack) || !isWordByte(haystack[end])
			if beforeOK && afterOK {
				return true
			}
			idx = start + 1
		}
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

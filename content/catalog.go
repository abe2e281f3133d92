// Package content holds the read-only game tables (levels, consumables,
// items, loan products, tribulation tuning) and the caches derived from them.
package content

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/gosimple/slug"
	"github.com/gosimple/unidecode"
	"gopkg.in/yaml.v3"

	"cultivation-core/models"
)

//go:embed default.yaml
var defaultTables []byte

// Catalog owns the content tables and every cache derived from them.
// Reload swaps tables and caches together.
type Catalog struct {
	mu     sync.RWMutex
	tables *Tables

	pillNames []string          // sorted
	bySlug    map[string]string // slug -> item or pill name
}

// Load reads the YAML file at path, or the embedded tables when path is empty.
func Load(path string) (*Catalog, error) {
	raw := defaultTables
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read content %s: %w", path, err)
		}
		raw = b
	}
	return Parse(raw)
}

// Default returns the embedded tables. It panics if they are invalid.
func Default() *Catalog {
	c, err := Parse(defaultTables)
	if err != nil {
		panic(err)
	}
	return c
}

// Parse builds a catalog from a YAML document.
func Parse(raw []byte) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Reload(raw); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload validates raw and atomically replaces tables and derived caches.
// On error the current tables stay in place.
func (c *Catalog) Reload(raw []byte) error {
	var t Tables
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return fmt.Errorf("decode content: %w", err)
	}
	applyDefaults(&t)
	if err := validate(&t); err != nil {
		return err
	}

	names := make([]string, 0, len(t.Pills))
	for name := range t.Pills {
		names = append(names, name)
	}
	sort.Strings(names)

	bySlug := make(map[string]string, len(t.Pills)+len(t.Items))
	for name := range t.Pills {
		bySlug[slug.Make(name)] = name
	}
	for name := range t.Items {
		bySlug[slug.Make(name)] = name
	}

	c.mu.Lock()
	c.tables = &t
	c.pillNames = names
	c.bySlug = bySlug
	c.mu.Unlock()
	return nil
}

func applyDefaults(t *Tables) {
	if t.DefaultRing == "" {
		t.DefaultRing = "basic_ring"
	}
	if _, ok := t.Rings[t.DefaultRing]; !ok {
		if t.Rings == nil {
			t.Rings = map[string]int{}
		}
		t.Rings[t.DefaultRing] = 10
	}
	if t.Breakthrough.FailureExpPenalty == 0 {
		t.Breakthrough.FailureExpPenalty = 0.10
	}
	if t.Breakthrough.PermanentGainCap == 0 {
		t.Breakthrough.PermanentGainCap = 0.30
	}
	if t.Breakthrough.MultiplierCap == 0 {
		t.Breakthrough.MultiplierCap = 0.30
	}
	if t.Tribulation.Jitter == 0 {
		t.Tribulation.Jitter = 0.20
	}
	if t.Tribulation.LevelsPerExtraWave == 0 {
		t.Tribulation.LevelsPerExtraWave = 1
	}
}

func validate(t *Tables) error {
	if len(t.Levels) == 0 {
		return fmt.Errorf("content: no levels defined")
	}
	for i, l := range t.Levels {
		if l.SuccessRate < 0 || l.SuccessRate > 1 {
			return fmt.Errorf("content: level %d success_rate %.2f outside [0,1]", i, l.SuccessRate)
		}
		if i > 0 && l.ExpRequired < t.Levels[i-1].ExpRequired {
			return fmt.Errorf("content: level %d exp_required decreases", i)
		}
	}
	for name, a := range t.Archetypes {
		if !models.Archetype(name).Valid() {
			return fmt.Errorf("content: unknown archetype %q", name)
		}
		if a.Resource == "" {
			return fmt.Errorf("content: archetype %q has no resource", name)
		}
	}
	for name, p := range t.Pills {
		switch p.Kind {
		case PillTemporary:
			if p.DurationMinutes < 0 {
				return fmt.Errorf("content: pill %q has negative duration", name)
			}
		case PillBreakthrough:
			if p.TargetLevel <= 0 || p.TargetLevel >= len(t.Levels) {
				return fmt.Errorf("content: pill %q targets undefined level %d", name, p.TargetLevel)
			}
		case PillInstant, PillPermanent, PillReset:
		default:
			return fmt.Errorf("content: pill %q has unknown kind %q", name, p.Kind)
		}
	}
	for _, e := range t.Shop {
		_, isPill := t.Pills[e.Item]
		_, isItem := t.Items[e.Item]
		if !isPill && !isItem {
			return fmt.Errorf("content: shop lists unknown item %q", e.Item)
		}
		if e.Price < 0 || e.Stock < 0 {
			return fmt.Errorf("content: shop entry %q has negative price or stock", e.Item)
		}
	}
	for name, lp := range t.Loans {
		switch models.LoanSubtype(name) {
		case models.LoanNormal, models.LoanExpedited:
		default:
			return fmt.Errorf("content: unknown loan subtype %q", name)
		}
		if lp.MinAmount <= 0 || lp.MaxAmount < lp.MinAmount || lp.TermDays <= 0 {
			return fmt.Errorf("content: loan %q has invalid bounds", name)
		}
	}
	return nil
}

func (c *Catalog) snapshot() *Tables {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tables
}

// MaxLevel is the highest defined level index.
func (c *Catalog) MaxLevel() int {
	return len(c.snapshot().Levels) - 1
}

// Level returns the row for a level index.
func (c *Catalog) Level(i int) (Level, bool) {
	t := c.snapshot()
	if i < 0 || i >= len(t.Levels) {
		return Level{}, false
	}
	return t.Levels[i], true
}

// Archetype returns the seed profile of an archetype.
func (c *Catalog) Archetype(a models.Archetype) (ArchetypeProfile, bool) {
	p, ok := c.snapshot().Archetypes[string(a)]
	return p, ok
}

// Pill looks up a consumable by name.
func (c *Catalog) Pill(name string) (Pill, bool) {
	p, ok := c.snapshot().Pills[name]
	return p, ok
}

// IsPill reports whether name is a consumable.
func (c *Catalog) IsPill(name string) bool {
	_, ok := c.Pill(name)
	return ok
}

// PillNames returns all consumable names, sorted.
func (c *Catalog) PillNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.pillNames))
	copy(out, c.pillNames)
	return out
}

// Item looks up a non-consumable by name.
func (c *Catalog) Item(name string) (Item, bool) {
	it, ok := c.snapshot().Items[name]
	return it, ok
}

// Known reports whether name is any pill or item.
func (c *Catalog) Known(name string) bool {
	_, isItem := c.Item(name)
	return isItem || c.IsPill(name)
}

// RequiredLevel is the minimum level to buy or use name.
func (c *Catalog) RequiredLevel(name string) int {
	if p, ok := c.Pill(name); ok {
		return p.RequiredLevel
	}
	if it, ok := c.Item(name); ok {
		return it.RequiredLevel
	}
	return 0
}

// BySlug resolves a URL slug to an item or pill name.
func (c *Catalog) BySlug(s string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.bySlug[s]
	return name, ok
}

// Resolve maps player input to an item or pill name. Exact names win;
// otherwise case, spacing and accent variants of a name or its slug match.
func (c *Catalog) Resolve(input string) (string, bool) {
	if c.Known(input) {
		return input, true
	}
	folded := strings.ToLower(strings.TrimSpace(unidecode.Unidecode(input)))
	if folded == "" {
		return "", false
	}
	return c.BySlug(Slug(folded))
}

// Slug returns the URL slug of a name.
func Slug(name string) string {
	return slug.Make(name)
}

// RingCapacity returns the slot count of a ring; unknown rings fall back to
// the default ring.
func (c *Catalog) RingCapacity(ring string) int {
	t := c.snapshot()
	if n, ok := t.Rings[ring]; ok {
		return n
	}
	return t.Rings[t.DefaultRing]
}

// DefaultRing is the ring given to new players.
func (c *Catalog) DefaultRing() string {
	return c.snapshot().DefaultRing
}

// LoanProduct returns the product of a loan subtype.
func (c *Catalog) LoanProduct(s models.LoanSubtype) (LoanProduct, bool) {
	lp, ok := c.snapshot().Loans[string(s)]
	return lp, ok
}

// ShopDefaults returns the restock listing in display order.
func (c *Catalog) ShopDefaults() []ShopEntry {
	t := c.snapshot()
	out := make([]ShopEntry, len(t.Shop))
	copy(out, t.Shop)
	return out
}

// Tribulation returns the tribulation tuning.
func (c *Catalog) Tribulation() TribulationConfig {
	return c.snapshot().Tribulation
}

// Breakthrough returns the breakthrough tuning.
func (c *Catalog) Breakthrough() BreakthroughConfig {
	return c.snapshot().Breakthrough
}

// BusyAllowed reports whether action may run while the player is busy.
func (c *Catalog) BusyAllowed(action string) bool {
	for _, a := range c.snapshot().BusyAllowList {
		if a == action {
			return true
		}
	}
	return false
}

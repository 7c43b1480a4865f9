package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type Catalogs struct {
	Items ItemCatalog
}

type ItemCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string
}

type ItemDef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Slot        string `json:"slot"`   // "weapon","head","chest","charm","consumable"
	Rarity      string `json:"rarity"` // "COMMON".."LEGENDARY"
	Bind        string `json:"bind,omitempty"`
	BaseValue   int    `json:"base_value"`
}

var validRarities = map[string]bool{
	"COMMON":    true,
	"UNCOMMON":  true,
	"RARE":      true,
	"EPIC":      true,
	"LEGENDARY": true,
}

var validSlots = map[string]bool{
	"weapon":     true,
	"head":       true,
	"chest":      true,
	"charm":      true,
	"consumable": true,
}

var validBinds = map[string]bool{
	"":               true,
	"UNBOUND":        true,
	"BIND_ON_EQUIP":  true,
	"BIND_ON_PICKUP": true,
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.json: empty id")
		}
		if d.Name == "" {
			return fmt.Errorf("items.json: %s: empty name", d.ID)
		}
		if !validRarities[d.Rarity] {
			return fmt.Errorf("items.json: %s: bad rarity %q", d.ID, d.Rarity)
		}
		if !validSlots[d.Slot] {
			return fmt.Errorf("items.json: %s: bad slot %q", d.ID, d.Slot)
		}
		if !validBinds[d.Bind] {
			return fmt.Errorf("items.json: %s: bad bind %q", d.ID, d.Bind)
		}
		if d.BaseValue < 0 {
			return fmt.Errorf("items.json: %s: negative base_value", d.ID)
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("items.json: duplicate id %s", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

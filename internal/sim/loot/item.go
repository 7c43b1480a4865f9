package loot

// Rarity tiers, lowest to highest.
type Rarity string

const (
	RarityCommon    Rarity = "COMMON"
	RarityUncommon  Rarity = "UNCOMMON"
	RarityRare      Rarity = "RARE"
	RarityEpic      Rarity = "EPIC"
	RarityLegendary Rarity = "LEGENDARY"
)

var rarityRank = map[Rarity]int{
	RarityCommon:    0,
	RarityUncommon:  1,
	RarityRare:      2,
	RarityEpic:      3,
	RarityLegendary: 4,
}

func (r Rarity) Valid() bool {
	_, ok := rarityRank[r]
	return ok
}

// Rank returns the ordinal of the tier; unknown tiers rank below COMMON.
func (r Rarity) Rank() int {
	if v, ok := rarityRank[r]; ok {
		return v
	}
	return -1
}

// BindPolicy controls whether an item binds to its recipient.
type BindPolicy string

const (
	BindNone     BindPolicy = "UNBOUND"
	BindOnEquip  BindPolicy = "BIND_ON_EQUIP"
	BindOnPickup BindPolicy = "BIND_ON_PICKUP"
)

func (b BindPolicy) Valid() bool {
	switch b {
	case BindNone, BindOnEquip, BindOnPickup:
		return true
	}
	return false
}

// Item is the loot payload of an entry. Immutable once wrapped:
// entries copy it by value and never write back.
type Item struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Slot        string     `json:"slot"` // "weapon","head","chest","charm","consumable"
	Rarity      Rarity     `json:"rarity"`
	Bind        BindPolicy `json:"bind"`
	Value       int        `json:"value"` // gold
	Quantity    int        `json:"quantity"`
}

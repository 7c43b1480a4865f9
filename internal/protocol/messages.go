package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	PlayerName      string            `json:"player_name"`
	Class           string            `json:"class,omitempty"`
	Level           int               `json:"level,omitempty"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
	Auth            *HelloAuth        `json:"auth,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id,omitempty"`
	MemberID        string         `json:"member_id"`
	ResumeToken     string         `json:"resume_token"`
	TableParams     TableParams    `json:"table_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type TableParams struct {
	TickRateHz         int   `json:"tick_rate_hz"`
	RollWindowTicks    int   `json:"roll_window_ticks"`
	AnnounceGraceTicks int   `json:"announce_grace_ticks"`
	AutoClaimTicks     int   `json:"auto_claim_ticks"`
	RollValueMin       int   `json:"roll_value_min"`
	RollValueMax       int   `json:"roll_value_max"`
	Seed               int64 `json:"seed"`
}

type CatalogDigests struct {
	ItemPalette DigestRef `json:"item_palette"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// CATALOG (server -> client): a chunk of catalog data.
// Each catalog is sent as a single part.
type CatalogMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Name            string      `json:"name"`   // e.g. "item_palette"
	Digest          string      `json:"digest"` // sha256 hex
	Part            int         `json:"part"`
	TotalParts      int         `json:"total_parts"`
	Data            interface{} `json:"data"`
}

// ACT (client -> server)
type ActMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	MemberID        string       `json:"member_id"`
	Instants        []InstantReq `json:"instants,omitempty"`
}

type InstantReq struct {
	ID   string `json:"id"`
	Type string `json:"type"` // "ROLL", "CLAIM", "AWARD_LOOT"

	EntryID  string `json:"entry_id,omitempty"`
	Decision string `json:"decision,omitempty"` // "NEED", "GREED", "PASS"

	ItemID   string `json:"item_id,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
	Personal bool   `json:"personal,omitempty"`
	OwnerID  string `json:"owner_id,omitempty"`
}

// EVENT (server -> client): per-tick batch of events for one member,
// plus a summary of the live entries so clients can redraw countdowns.
type EventMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Tick            uint64         `json:"tick"`
	MemberID        string         `json:"member_id"`
	Entries         []EntrySummary `json:"entries"`
	Events          []Event        `json:"events"`
	EventsCursor    uint64         `json:"events_cursor"`
}

type EntrySummary struct {
	EntryID        string `json:"entry_id"`
	ItemID         string `json:"item_id"`
	Name           string `json:"name"`
	Rarity         string `json:"rarity"`
	Quantity       int    `json:"quantity,omitempty"`
	Flow           string `json:"flow"`
	State          string `json:"state"`
	RemainingTicks uint64 `json:"remaining_ticks"`
	Rolls          int    `json:"rolls,omitempty"`
	Rolled         bool   `json:"rolled,omitempty"` // whether this member already rolled
	OwnerID        string `json:"owner_id,omitempty"`
	WinnerID       string `json:"winner_id,omitempty"`
}

type Event map[string]interface{}

package loot

import (
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"hemoclast.online/internal/protocol"
	"hemoclast.online/internal/sim/catalogs"
)

type JoinRequest struct {
	Name  string
	Class string
	Level int
	Out   chan []byte
	Resp  chan JoinResponse
}

type AttachRequest struct {
	ResumeToken string
	Out         chan []byte
	Resp        chan JoinResponse
}

// LeaveRequest detaches one connection. Out identifies which connection
// is going away; a nil Out detaches whatever is attached.
type LeaveRequest struct {
	MemberID string
	Out      chan []byte
}

type JoinResponse struct {
	Welcome  protocol.WelcomeMsg
	Catalogs []protocol.CatalogMsg
}

type ActionEnvelope struct {
	MemberID string
	Act      protocol.ActMsg
}

type RecordedJoin struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
}

type RecordedAction struct {
	MemberID string          `json:"member_id"`
	Act      protocol.ActMsg `json:"act"`
}

// ResolutionRecord is the journal row written when an entry retires.
type ResolutionRecord struct {
	EntryID  string `json:"entry_id"`
	ItemID   string `json:"item_id"`
	Flow     string `json:"flow"`
	Outcome  string `json:"outcome"` // resolution reason, "claimed" or "auto-claimed"
	WinnerID string `json:"winner_id,omitempty"`
	Value    int    `json:"value,omitempty"`
	Rolls    int    `json:"rolls,omitempty"`
}

type JournalEntry struct {
	Tick        uint64             `json:"tick"`
	Joins       []RecordedJoin     `json:"joins,omitempty"`
	Leaves      []string           `json:"leaves,omitempty"`
	Actions     []RecordedAction   `json:"actions,omitempty"`
	Resolutions []ResolutionRecord `json:"resolutions,omitempty"`
}

// Journal receives per-tick loot activity. Implemented in internal/persistence/*.
type Journal interface {
	WriteTick(entry JournalEntry) error
}

// Roster receives membership updates for the read-model store.
// Never consulted by arbitration.
type Roster interface {
	UpsertMember(rec MemberRecord) error
	SaveSession(token, memberID string) error
}

type MemberRecord struct {
	ID    string
	Name  string
	Class string
	Level int
}

type TableMetrics struct {
	Tick          uint64  `json:"tick"`
	Members       int     `json:"members"`
	Clients       int     `json:"clients"`
	ActiveEntries int     `json:"active_entries"`
	StepMS        float64 `json:"step_ms"`
	QueueDepths   struct {
		Inbox int `json:"inbox"`
		Join  int `json:"join"`
		Leave int `json:"leave"`
	} `json:"queue_depths"`
}

// Table is the single-threaded authoritative loot state.
// All state must be accessed only from the table loop goroutine.
type Table struct {
	cfg      TableConfig
	catalogs *catalogs.Catalogs

	tick    atomic.Uint64
	metrics atomic.Value

	members map[string]*Member
	clients map[string]*clientState
	entries map[string]*Entry

	inbox  chan ActionEnvelope
	join   chan JoinRequest
	attach chan AttachRequest
	leave  chan LeaveRequest
	stop   chan struct{}

	nextMemberNum atomic.Uint64
	nextEntryNum  atomic.Uint64
	nextRollSeq   atomic.Uint64

	values ValueSource

	// Optional sinks (may be nil). Implemented in internal/persistence/*.
	journal Journal
	roster  Roster
	logger  *log.Logger

	// Resolutions retired during the current step, flushed to the journal.
	retiredThisTick []ResolutionRecord
}

type clientState struct {
	Out chan []byte
}

func New(cfg TableConfig, cats *catalogs.Catalogs) (*Table, error) {
	cfg.applyDefaults()
	if cfg.ID == "" {
		return nil, fmt.Errorf("table id must not be empty")
	}
	if cats == nil {
		return nil, fmt.Errorf("missing catalogs")
	}
	t := &Table{
		cfg:      cfg,
		catalogs: cats,
		members:  map[string]*Member{},
		clients:  map[string]*clientState{},
		entries:  map[string]*Entry{},
		inbox:    make(chan ActionEnvelope, 1024),
		join:     make(chan JoinRequest, 64),
		attach:   make(chan AttachRequest, 64),
		leave:    make(chan LeaveRequest, 64),
		stop:     make(chan struct{}),
		values:   NewValueSource(cfg.Seed),
	}
	return t, nil
}

func (t *Table) SetJournal(j Journal)         { t.journal = j }
func (t *Table) SetRoster(r Roster)           { t.roster = r }
func (t *Table) SetLogger(l *log.Logger)      { t.logger = l }
func (t *Table) SetValueSource(v ValueSource) { t.values = v }

func (t *Table) Inbox() chan<- ActionEnvelope { return t.inbox }
func (t *Table) Join() chan<- JoinRequest     { return t.join }
func (t *Table) Attach() chan<- AttachRequest { return t.attach }
func (t *Table) Leave() chan<- LeaveRequest   { return t.leave }

func (t *Table) ID() string          { return t.cfg.ID }
func (t *Table) TickRateHz() int     { return t.cfg.TickRateHz }
func (t *Table) CurrentTick() uint64 { return t.tick.Load() }

func (t *Table) Metrics() TableMetrics {
	if v, ok := t.metrics.Load().(TableMetrics); ok {
		return v
	}
	return TableMetrics{}
}

func (t *Table) logf(format string, args ...interface{}) {
	if t.logger != nil {
		t.logger.Printf(format, args...)
	}
}

func (t *Table) newEntryID() string {
	return fmt.Sprintf("L%06d", t.nextEntryNum.Add(1))
}

func (t *Table) joinMember(name, class string, level int, out chan []byte) JoinResponse {
	if name == "" {
		name = "adventurer"
	}
	memberID := fmt.Sprintf("M%d", t.nextMemberNum.Add(1))

	m := &Member{ID: memberID, Name: name, Class: class, Level: level}
	m.initDefaults()
	t.members[memberID] = m
	if out != nil {
		t.clients[memberID] = &clientState{Out: out}
	}

	token := fmt.Sprintf("resume_%s_%d", t.cfg.ID, time.Now().UnixNano())
	m.ResumeToken = token

	if t.roster != nil {
		_ = t.roster.UpsertMember(MemberRecord{ID: m.ID, Name: m.Name, Class: m.Class, Level: m.Level})
		_ = t.roster.SaveSession(token, m.ID)
	}

	t.broadcastExcept(memberID, protocol.Event{
		"t":         t.tick.Load(),
		"type":      protocol.EventMemberJoined,
		"member_id": memberID,
		"name":      m.Name,
	})

	return JoinResponse{Welcome: t.buildWelcome(m), Catalogs: t.buildCatalogMsgs()}
}

func (t *Table) handleJoin(req JoinRequest) {
	resp := t.joinMember(req.Name, req.Class, req.Level, req.Out)
	if req.Resp != nil {
		req.Resp <- resp
	}
}

func (t *Table) handleAttach(req AttachRequest) {
	token := req.ResumeToken
	if token == "" || req.Out == nil {
		if req.Resp != nil {
			req.Resp <- JoinResponse{}
		}
		return
	}

	// Find member deterministically by iterating sorted ids.
	ids := make([]string, 0, len(t.members))
	for id := range t.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var m *Member
	for _, id := range ids {
		if mm := t.members[id]; mm != nil && mm.ResumeToken == token {
			m = mm
			break
		}
	}
	if m == nil {
		if req.Resp != nil {
			req.Resp <- JoinResponse{}
		}
		return
	}

	t.clients[m.ID] = &clientState{Out: req.Out}

	// Rotate token on successful resume.
	m.ResumeToken = fmt.Sprintf("resume_%s_%d", t.cfg.ID, time.Now().UnixNano())
	if t.roster != nil {
		_ = t.roster.SaveSession(m.ResumeToken, m.ID)
	}

	if req.Resp != nil {
		req.Resp <- JoinResponse{Welcome: t.buildWelcome(m), Catalogs: t.buildCatalogMsgs()}
	}
}

// handleLeave detaches the connection only. The member and their resume
// token stay so a reconnect can attach; mid-window entries keep them in
// the expected snapshot and personal loot still auto-claims for them.
// A buffered leave from an old connection must not detach a newer one,
// so the request's Out channel is checked against the attached client.
func (t *Table) handleLeave(req LeaveRequest) bool {
	c := t.clients[req.MemberID]
	if c == nil {
		return false
	}
	if req.Out != nil && c.Out != req.Out {
		return false
	}
	delete(t.clients, req.MemberID)
	t.broadcastExcept(req.MemberID, protocol.Event{
		"t":         t.tick.Load(),
		"type":      protocol.EventMemberLeft,
		"member_id": req.MemberID,
	})
	return true
}

func (t *Table) buildWelcome(m *Member) protocol.WelcomeMsg {
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		MemberID:        m.ID,
		ResumeToken:     m.ResumeToken,
		TableParams: protocol.TableParams{
			TickRateHz:         t.cfg.TickRateHz,
			RollWindowTicks:    t.cfg.RollWindowTicks,
			AnnounceGraceTicks: t.cfg.AnnounceGraceTicks,
			AutoClaimTicks:     t.cfg.AutoClaimTicks,
			RollValueMin:       MinRollValue,
			RollValueMax:       MaxRollValue,
			Seed:               t.cfg.Seed,
		},
		Catalogs: protocol.CatalogDigests{
			ItemPalette: protocol.DigestRef{
				Digest: t.catalogs.Items.PaletteDigest,
				Count:  len(t.catalogs.Items.Palette),
			},
		},
	}
}

func (t *Table) buildCatalogMsgs() []protocol.CatalogMsg {
	return []protocol.CatalogMsg{
		{
			Type:            protocol.TypeCatalog,
			ProtocolVersion: protocol.Version,
			Name:            "item_palette",
			Digest:          t.catalogs.Items.PaletteDigest,
			Part:            1,
			TotalParts:      1,
			Data:            t.catalogs.Items.Palette,
		},
	}
}

// broadcast adds an event to every member's queue.
func (t *Table) broadcast(e protocol.Event) {
	for _, m := range t.members {
		m.AddEvent(e)
	}
}

func (t *Table) broadcastExcept(memberID string, e protocol.Event) {
	for id, m := range t.members {
		if id == memberID {
			continue
		}
		m.AddEvent(e)
	}
}

func (t *Table) step(joins []JoinRequest, leaves []LeaveRequest, actions []ActionEnvelope) {
	started := time.Now()
	nowTick := t.tick.Load()

	// Apply leaves and joins deterministically at the tick boundary.
	recordedLeaves := make([]string, 0, len(leaves))
	for _, req := range leaves {
		if t.handleLeave(req) {
			recordedLeaves = append(recordedLeaves, req.MemberID)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		resp := t.joinMember(req.Name, req.Class, req.Level, req.Out)
		if req.Resp != nil {
			req.Resp <- resp
		}
		recordedJoins = append(recordedJoins, RecordedJoin{MemberID: resp.Welcome.MemberID, Name: req.Name})
	}

	// Apply actions in inbox order.
	recorded := make([]RecordedAction, 0, len(actions))
	for _, env := range actions {
		m := t.members[env.MemberID]
		if m == nil {
			t.logf("drop act from unknown member %s", env.MemberID)
			continue
		}
		env.Act.MemberID = env.MemberID // trust session identity
		recorded = append(recorded, RecordedAction{MemberID: env.MemberID, Act: env.Act})
		t.applyAct(m, env.Act, nowTick)
	}

	// Deadline sweep: window expiry, announcement grace, auto-claim.
	t.tickEntries(nowTick)

	// Flush event queues to connected clients as one EVENT batch per member.
	t.flushEvents(nowTick)

	if t.journal != nil {
		_ = t.journal.WriteTick(JournalEntry{
			Tick:        nowTick,
			Joins:       recordedJoins,
			Leaves:      recordedLeaves,
			Actions:     recorded,
			Resolutions: t.retiredThisTick,
		})
	}
	t.retiredThisTick = nil

	m := TableMetrics{
		Tick:          nowTick,
		Members:       len(t.members),
		Clients:       len(t.clients),
		ActiveEntries: len(t.entries),
		StepMS:        float64(time.Since(started).Microseconds()) / 1000.0,
	}
	m.QueueDepths.Inbox = len(t.inbox)
	m.QueueDepths.Join = len(t.join)
	m.QueueDepths.Leave = len(t.leave)
	t.metrics.Store(m)

	t.tick.Add(1)
}

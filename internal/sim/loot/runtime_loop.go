package loot

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"hemoclast.online/internal/protocol"
)

func (t *Table) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(t.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingActions []ActionEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []LeaveRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.stop:
			return nil
		case req := <-t.join:
			pendingJoins = append(pendingJoins, req)
		case req := <-t.attach:
			t.handleAttach(req)
		case req := <-t.leave:
			pendingLeaves = append(pendingLeaves, req)
		case env := <-t.inbox:
			pendingActions = append(pendingActions, env)
		case <-ticker.C:
			t.step(pendingJoins, pendingLeaves, pendingActions)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingActions = pendingActions[:0]
		}
	}
}

func (t *Table) Stop() { close(t.stop) }

// StepOnce advances the table by a single tick with the same ordering
// semantics as the server loop. Intended for deterministic replays/tests.
func (t *Table) StepOnce(joins []JoinRequest, leaves []LeaveRequest, actions []ActionEnvelope) (tick uint64) {
	tick = t.tick.Load()
	t.step(joins, leaves, actions)
	return tick
}

// tickEntries sweeps every entry's deadline once per tick. Entries are
// visited in sorted id order so runs with the same inputs retire in the
// same order.
func (t *Table) tickEntries(nowTick uint64) {
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		e := t.entries[id]
		if e == nil {
			continue
		}
		switch e.Flow {
		case FlowGroup:
			if e.State == EntryActive && nowTick >= e.WindowEndsTick {
				t.resolveEntry(e, nowTick)
			}
			if e.State == EntryAnnounced && nowTick >= e.RetireTick {
				t.retireGroupEntry(e)
			}
		case FlowPersonal:
			if e.State == EntryActive && nowTick >= e.AutoClaimTick {
				t.autoClaimEntry(e, nowTick)
			}
		}
	}
}

// resolveEntry arbitrates a group entry. The Active guard makes
// resolution exactly-once: the early all-rolled path and the window
// deadline converge here, whichever fires first wins and the other
// becomes a no-op.
func (t *Table) resolveEntry(e *Entry, nowTick uint64) {
	if e.State != EntryActive {
		return
	}
	e.State = EntryResolving

	res := Arbitrate(e.Rolls)
	e.Resolution = &res

	ev := protocol.Event{
		"t":        nowTick,
		"type":     protocol.EventLootItemWon,
		"entry_id": e.EntryID,
		"item_id":  e.Item.ID,
		"name":     e.Item.Name,
		"reason":   string(res.Reason),
	}
	if res.Winning != nil {
		ev["winner_id"] = res.WinnerID
		ev["decision"] = string(res.Winning.Decision)
		ev["value"] = res.Winning.Value
	}
	t.broadcast(ev)

	e.State = EntryAnnounced
	e.RetireTick = nowTick + uint64(t.cfg.AnnounceGraceTicks)
}

func (t *Table) retireGroupEntry(e *Entry) {
	rec := ResolutionRecord{
		EntryID: e.EntryID,
		ItemID:  e.Item.ID,
		Flow:    string(e.Flow),
		Rolls:   len(e.Rolls),
	}
	if e.Resolution != nil {
		rec.Outcome = string(e.Resolution.Reason)
		rec.WinnerID = e.Resolution.WinnerID
		if e.Resolution.Winning != nil {
			rec.Value = e.Resolution.Winning.Value
		}
	}
	t.retireEntry(e, rec)
}

func (t *Table) autoClaimEntry(e *Entry, nowTick uint64) {
	e.State = EntryAutoClaimed
	t.broadcast(protocol.Event{
		"t":        nowTick,
		"type":     protocol.EventLootPersonalAuto,
		"entry_id": e.EntryID,
		"item_id":  e.Item.ID,
		"name":     e.Item.Name,
		"owner_id": e.OwnerID,
	})
	t.retireEntry(e, ResolutionRecord{
		EntryID:  e.EntryID,
		ItemID:   e.Item.ID,
		Flow:     string(e.Flow),
		Outcome:  "auto-claimed",
		WinnerID: e.OwnerID,
	})
}

// retireEntry removes the entry from the live set and records it for
// the journal. Once the last entry retires the table announces that
// distribution is done.
func (t *Table) retireEntry(e *Entry, rec ResolutionRecord) {
	e.State = EntryRetired
	delete(t.entries, e.EntryID)
	t.retiredThisTick = append(t.retiredThisTick, rec)

	if len(t.entries) == 0 {
		t.broadcast(protocol.Event{
			"t":    t.tick.Load(),
			"type": protocol.EventLootClosed,
		})
	}
}

// flushEvents drains every member's event queue and, for members with a
// connected client, sends one EVENT batch with the current entry
// summaries. Queues drain whether or not a client is attached so a
// disconnected member cannot grow one without bound.
func (t *Table) flushEvents(nowTick uint64) {
	summaries := t.entrySummaries(nowTick)

	ids := make([]string, 0, len(t.members))
	for id := range t.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		m := t.members[id]
		events := m.TakeEvents()
		m.EventCursor += uint64(len(events))

		c := t.clients[id]
		if c == nil || c.Out == nil {
			continue
		}

		perMember := make([]protocol.EntrySummary, len(summaries))
		copy(perMember, summaries)
		for i := range perMember {
			if e := t.entries[perMember[i].EntryID]; e != nil {
				perMember[i].Rolled = e.HasRolled(id)
			}
		}

		msg := protocol.EventMsg{
			Type:            protocol.TypeEvent,
			ProtocolVersion: protocol.Version,
			Tick:            nowTick,
			MemberID:        id,
			Entries:         perMember,
			Events:          events,
			EventsCursor:    m.EventCursor,
		}
		b, err := json.Marshal(msg)
		if err != nil {
			t.logf("marshal EVENT for %s: %v", id, err)
			continue
		}
		sendLatest(c.Out, b)
	}
}

func (t *Table) entrySummaries(nowTick uint64) []protocol.EntrySummary {
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]protocol.EntrySummary, 0, len(ids))
	for _, id := range ids {
		e := t.entries[id]
		s := protocol.EntrySummary{
			EntryID:  e.EntryID,
			ItemID:   e.Item.ID,
			Name:     e.Item.Name,
			Rarity:   string(e.Item.Rarity),
			Quantity: e.Item.Quantity,
			Flow:     string(e.Flow),
			State:    string(e.State),
			Rolls:    len(e.Rolls),
			OwnerID:  e.OwnerID,
		}
		switch e.Flow {
		case FlowGroup:
			s.RemainingTicks = e.RemainingTicks(nowTick)
		case FlowPersonal:
			if nowTick < e.AutoClaimTick {
				s.RemainingTicks = e.AutoClaimTick - nowTick
			}
		}
		if e.Resolution != nil {
			s.WinnerID = e.Resolution.WinnerID
		}
		out = append(out, s)
	}
	return out
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

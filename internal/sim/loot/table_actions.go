package loot

import (
	"hemoclast.online/internal/protocol"
)

type instantHandler func(*Table, *Member, protocol.InstantReq, uint64)

var instantDispatch = map[string]instantHandler{
	InstantTypeAwardLoot: handleInstantAwardLoot,
	InstantTypeRoll:      handleInstantRoll,
	InstantTypeClaim:     handleInstantClaim,
}

const (
	InstantTypeAwardLoot = "AWARD_LOOT"
	InstantTypeRoll      = "ROLL"
	InstantTypeClaim     = "CLAIM"
)

func (t *Table) applyAct(m *Member, act protocol.ActMsg, nowTick uint64) {
	// Staleness check: accept only [now-2, now].
	if act.Tick+2 < nowTick || act.Tick > nowTick {
		m.AddEvent(actionResult(nowTick, "ACT", false, protocol.ErrStale, "act tick out of range"))
		return
	}
	for _, inst := range act.Instants {
		t.applyInstant(m, inst, nowTick)
	}
}

func (t *Table) applyInstant(m *Member, inst protocol.InstantReq, nowTick uint64) {
	if h := instantDispatch[inst.Type]; h != nil {
		h(t, m, inst, nowTick)
		return
	}
	m.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "unknown instant type"))
}

func handleInstantAwardLoot(t *Table, m *Member, inst protocol.InstantReq, nowTick uint64) {
	if inst.ItemID == "" {
		m.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "missing item_id"))
		return
	}
	def, ok := t.catalogs.Items.Defs[inst.ItemID]
	if !ok {
		m.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrUnknownItem, "item not in palette"))
		return
	}
	if ok, cd := m.RateLimitAllow(InstantTypeAwardLoot, nowTick, t.cfg.RateLimits.AwardWindowTicks, t.cfg.RateLimits.AwardMax); !ok {
		ev := actionResult(nowTick, inst.ID, false, protocol.ErrRateLimit, "too many AWARD_LOOT")
		ev["cooldown_ticks"] = cd
		ev["cooldown_until_tick"] = nowTick + cd
		m.AddEvent(ev)
		return
	}

	qty := inst.Quantity
	if qty <= 0 {
		qty = 1
	}
	bind := BindPolicy(def.Bind)
	if bind == "" {
		bind = BindNone
	}
	item := Item{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Slot:        def.Slot,
		Rarity:      Rarity(def.Rarity),
		Bind:        bind,
		Value:       def.BaseValue,
		Quantity:    qty,
	}

	e := &Entry{
		EntryID:     t.newEntryID(),
		Item:        item,
		State:       EntryActive,
		CreatedTick: nowTick,
	}
	if inst.Personal {
		ownerID := inst.OwnerID
		if ownerID == "" {
			ownerID = m.ID
		}
		if t.members[ownerID] == nil {
			m.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "owner not in party"))
			return
		}
		e.Flow = FlowPersonal
		e.OwnerID = ownerID
		e.AutoClaimTick = nowTick + uint64(t.cfg.AutoClaimTicks)
	} else {
		e.Flow = FlowGroup
		e.WindowEndsTick = nowTick + uint64(t.cfg.RollWindowTicks)
		// Snapshot the party at award time: only these members are
		// waited on for the all-rolled early resolve.
		e.Expected = make(map[string]bool, len(t.members))
		for id := range t.members {
			e.Expected[id] = true
		}
	}
	t.entries[e.EntryID] = e

	ev := protocol.Event{
		"t":        nowTick,
		"type":     protocol.EventLootItemAdded,
		"entry_id": e.EntryID,
		"item_id":  item.ID,
		"name":     item.Name,
		"rarity":   string(item.Rarity),
		"quantity": item.Quantity,
		"flow":     string(e.Flow),
	}
	if e.Flow == FlowPersonal {
		ev["owner_id"] = e.OwnerID
		ev["auto_claim_tick"] = e.AutoClaimTick
	} else {
		ev["window_ends_tick"] = e.WindowEndsTick
	}
	t.broadcast(ev)

	ack := actionResult(nowTick, inst.ID, true, "", "ok")
	ack["entry_id"] = e.EntryID
	m.AddEvent(ack)
}

func handleInstantRoll(t *Table, m *Member, inst protocol.InstantReq, nowTick uint64) {
	dec, ok := ParseDecision(inst.Decision)
	if !ok {
		m.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "invalid decision"))
		return
	}
	e := t.entries[inst.EntryID]
	if e == nil {
		// Roll raced a resolution that already retired the entry. Not an
		// error worth disconnecting over; reject and move on.
		t.logf("roll from %s for unknown entry %s", m.ID, inst.EntryID)
		m.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrInvalidState, "entry not found"))
		return
	}
	if e.Flow != FlowGroup {
		m.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrInvalidState, "not a group entry"))
		return
	}
	if !e.WindowOpen(nowTick) {
		m.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrRollClosed, "roll window closed"))
		return
	}
	if e.HasRolled(m.ID) {
		m.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrDuplicateRoll, "already rolled on this entry"))
		return
	}
	if ok, cd := m.RateLimitAllow(InstantTypeRoll, nowTick, t.cfg.RateLimits.RollWindowTicks, t.cfg.RateLimits.RollMax); !ok {
		ev := actionResult(nowTick, inst.ID, false, protocol.ErrRateLimit, "too many ROLL")
		ev["cooldown_ticks"] = cd
		ev["cooldown_until_tick"] = nowTick + cd
		m.AddEvent(ev)
		return
	}

	value := 0
	if dec != DecisionPass {
		value = t.values.RollValue()
	}
	r := Roll{
		MemberID: m.ID,
		Decision: dec,
		Value:    value,
		Tick:     nowTick,
		Seq:      t.nextRollSeq.Add(1),
	}
	e.recordRoll(r)

	t.broadcast(protocol.Event{
		"t":         nowTick,
		"type":      protocol.EventLootRollSubmitted,
		"entry_id":  e.EntryID,
		"member_id": m.ID,
		"decision":  string(dec),
		"value":     value,
	})

	ack := actionResult(nowTick, inst.ID, true, "", "ok")
	ack["entry_id"] = e.EntryID
	ack["value"] = value
	m.AddEvent(ack)

	// Everyone answered: resolve now instead of waiting out the window.
	if e.allExpectedRolled() {
		t.resolveEntry(e, nowTick)
	}
}

func handleInstantClaim(t *Table, m *Member, inst protocol.InstantReq, nowTick uint64) {
	e := t.entries[inst.EntryID]
	if e == nil {
		t.logf("claim from %s for unknown entry %s", m.ID, inst.EntryID)
		m.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrInvalidState, "entry not found"))
		return
	}
	if e.Flow != FlowPersonal {
		m.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrInvalidState, "not a personal entry"))
		return
	}
	if e.OwnerID != m.ID {
		m.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrNoPermission, "not the owner"))
		return
	}
	if e.State != EntryActive {
		m.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrInvalidState, "already claimed"))
		return
	}

	e.State = EntryClaimed
	t.broadcast(protocol.Event{
		"t":        nowTick,
		"type":     protocol.EventLootPersonalTaken,
		"entry_id": e.EntryID,
		"item_id":  e.Item.ID,
		"name":     e.Item.Name,
		"owner_id": e.OwnerID,
	})
	ack := actionResult(nowTick, inst.ID, true, "", "ok")
	ack["entry_id"] = e.EntryID
	m.AddEvent(ack)

	t.retireEntry(e, ResolutionRecord{
		EntryID:  e.EntryID,
		ItemID:   e.Item.ID,
		Flow:     string(e.Flow),
		Outcome:  "claimed",
		WinnerID: e.OwnerID,
	})
}

func actionResult(tick uint64, ref string, ok bool, code string, message string) protocol.Event {
	if !protocol.IsKnownCode(code) {
		code = protocol.ErrInternal
		if message == "" {
			message = "unknown error code"
		}
	}
	e := protocol.Event{
		"t":    tick,
		"type": protocol.EventActionResult,
		"ref":  ref,
		"ok":   ok,
	}
	if code != "" {
		e["code"] = code
	}
	if message != "" {
		e["message"] = message
	}
	return e
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"hemoclast.online/internal/protocol"
)

// partybot connects one simulated party member that rolls on whatever
// loot appears, with a human-ish delay. Run several to fill a party.
func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "player name")
		class    = flag.String("class", "WARRIOR", "character class")
		level    = flag.Int("level", 10, "character level")
		decision = flag.String("decision", "random", "roll decision: need, greed, pass or random")
		award    = flag.String("award", "", "item id to award on join (empty: never award)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[partybot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
		Class:           *class,
		Level:           *level,
		Capabilities: protocol.HelloCapabilities{
			MaxQueue: 8,
		},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	b := &bot{
		conn:     conn,
		log:      logger,
		decision: strings.ToLower(*decision),
		award:    *award,
		rolled:   map[string]bool{},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.memberID = w.MemberID
			logger.Printf("WELCOME member_id=%s tick_rate=%d window=%d ticks", w.MemberID, w.TableParams.TickRateHz, w.TableParams.RollWindowTicks)

		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			b.handleEvents(&ev)
		}
	}
}

type bot struct {
	conn     *websocket.Conn
	log      *log.Logger
	memberID string
	decision string
	award    string
	awarded  bool
	rolled   map[string]bool
	rng      *rand.Rand
}

func (b *bot) handleEvents(ev *protocol.EventMsg) {
	if b.memberID == "" {
		return
	}

	if b.award != "" && !b.awarded {
		b.awarded = true
		b.send(ev.Tick, protocol.InstantReq{
			ID:     fmt.Sprintf("I_award_%d", ev.Tick),
			Type:   "AWARD_LOOT",
			ItemID: b.award,
		})
	}

	for _, s := range ev.Entries {
		switch {
		case s.Flow == "GROUP" && s.State == "ACTIVE" && !s.Rolled && !b.rolled[s.EntryID]:
			// Hesitate a little so submissions interleave across bots.
			if b.rng.Intn(4) != 0 {
				continue
			}
			b.rolled[s.EntryID] = true
			b.send(ev.Tick, protocol.InstantReq{
				ID:       fmt.Sprintf("I_roll_%s_%d", s.EntryID, ev.Tick),
				Type:     "ROLL",
				EntryID:  s.EntryID,
				Decision: b.pickDecision(),
			})
			b.log.Printf("rolling on %s (%s)", s.EntryID, s.Name)

		case s.Flow == "PERSONAL" && s.State == "ACTIVE" && s.OwnerID == b.memberID && !b.rolled[s.EntryID]:
			if b.rng.Intn(3) != 0 {
				continue
			}
			b.rolled[s.EntryID] = true
			b.send(ev.Tick, protocol.InstantReq{
				ID:      fmt.Sprintf("I_claim_%s_%d", s.EntryID, ev.Tick),
				Type:    "CLAIM",
				EntryID: s.EntryID,
			})
			b.log.Printf("claiming %s (%s)", s.EntryID, s.Name)
		}
	}

	for _, e := range ev.Events {
		if e["type"] == protocol.EventLootItemWon && e["winner_id"] == b.memberID {
			b.log.Printf("won %v with %v (%v)", e["name"], e["value"], e["reason"])
		}
	}
}

func (b *bot) pickDecision() string {
	switch b.decision {
	case "need", "greed", "pass":
		return strings.ToUpper(b.decision)
	}
	return []string{"NEED", "GREED", "PASS"}[b.rng.Intn(3)]
}

func (b *bot) send(tick uint64, inst protocol.InstantReq) {
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		MemberID:        b.memberID,
		Instants:        []protocol.InstantReq{inst},
	}
	_ = b.conn.WriteJSON(act)
}

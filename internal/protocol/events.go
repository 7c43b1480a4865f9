package protocol

// Event type strings carried in the "type" key of an Event payload.
const (
	EventLootItemAdded     = "LOOT_ITEM_ADDED"
	EventLootRollSubmitted = "LOOT_ROLL_SUBMITTED"
	EventLootItemWon       = "LOOT_ITEM_WON"
	EventLootPersonalTaken = "LOOT_PERSONAL_TAKEN"
	EventLootPersonalAuto  = "LOOT_PERSONAL_AUTO"
	EventLootClosed        = "LOOT_CLOSED"
	EventActionResult      = "ACTION_RESULT"
	EventMemberJoined      = "MEMBER_JOINED"
	EventMemberLeft        = "MEMBER_LEFT"
)

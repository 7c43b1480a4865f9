package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Loot rule layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrDuplicateRoll = "E_DUPLICATE_ROLL"
	ErrRollClosed    = "E_ROLL_CLOSED"
	ErrInvalidState  = "E_INVALID_STATE"
	ErrNoPermission  = "E_NO_PERMISSION"
	ErrUnknownItem   = "E_UNKNOWN_ITEM"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrStale         = "E_STALE"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrDuplicateRoll:   {},
	ErrRollClosed:      {},
	ErrInvalidState:    {},
	ErrNoPermission:    {},
	ErrUnknownItem:     {},
	ErrRateLimit:       {},
	ErrStale:           {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

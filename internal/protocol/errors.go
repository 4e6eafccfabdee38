package protocol

const (
	// Request validation.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrBusy       = "E_BUSY"

	// Planning context.
	ErrNoPlanet      = "E_NO_PLANET"
	ErrNoFactory     = "E_NO_FACTORY"
	ErrIndexBuilding = "E_INDEX_BUILDING"

	// Run outcome.
	ErrContextChanged = "E_CONTEXT_CHANGED"
	ErrNoResource     = "E_NO_RESOURCE"
	ErrItemFailed     = "E_ITEM_FAILED"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:     {},
	ErrBusy:           {},
	ErrNoPlanet:       {},
	ErrNoFactory:      {},
	ErrIndexBuilding:  {},
	ErrContextChanged: {},
	ErrNoResource:     {},
	ErrItemFailed:     {},
	ErrInternal:       {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

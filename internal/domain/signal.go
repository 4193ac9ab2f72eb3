package domain

// SignalAction enumerates the three reconciler signal kinds.
type SignalAction string

const (
	SignalCreate SignalAction = "create"
	SignalEdit   SignalAction = "edit"
	SignalDelete SignalAction = "delete"
)

// PolicySignal is the normalised input to the policy reconciler (C5). It
// carries the fields the reconciler's sequences need, plus an Extra
// overflow map for attribute-bag fields that pass through without being
// interpreted (mirrors the source's dynamic attribute bag, materialised
// here as explicit fields for everything the reconciler actually reads).
type PolicySignal struct {
	Action              SignalAction
	Login               string
	Hash                string
	OldHash             string
	TCPRules            string
	UDPRules            string
	FramedIPAddress     string
	DelegatedIPv6Prefix string
	NASIPAddress        string
	PolicyID            *int64
	Extra               map[string]string
}

// SignalResult is what the reconciler returns to a caller (the admission
// router, the admin API, or the /signal HTTP handler).
type SignalResult struct {
	Success   bool
	PolicyID  *int64
	FGAddress string
	Reason    string
}

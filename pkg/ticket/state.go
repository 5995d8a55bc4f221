package ticket

// State is the lifecycle stage of an incoming ticket (spec.md §4.3).
type State int

const (
	// Untouched is the initial state: signature validated, PoR challenge
	// recorded, awaiting the downstream acknowledgement.
	Untouched State = iota

	// BeingRedeemed marks a winning ticket whose redemption transaction
	// is in flight on-chain.
	BeingRedeemed

	// BeingAggregated marks a ticket a strategy has included in an
	// aggregation request with neighboring tickets.
	BeingAggregated
)

func (s State) String() string {
	switch s {
	case Untouched:
		return "Untouched"
	case BeingRedeemed:
		return "BeingRedeemed"
	case BeingAggregated:
		return "BeingAggregated"
	default:
		return "Unknown"
	}
}

// canTransition enforces the state graph from spec.md §4.3:
//
//	Untouched -> BeingRedeemed
//	Untouched -> BeingAggregated
//	BeingRedeemed -> (removed, not transitioned)
//
// "Untouched -> dropped" is modeled by the caller removing the record
// rather than transitioning it, so it isn't represented here.
func canTransition(from, to State) bool {
	switch from {
	case Untouched:
		return to == BeingRedeemed || to == BeingAggregated
	default:
		return false
	}
}

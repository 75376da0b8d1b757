package assetflow

import "fmt"

// CostBasisMethod defines the method for calculating the cost basis of
// current holdings.
type CostBasisMethod int

const (
	// AverageCost reduces the position cost proportionally to the running
	// weighted average on every sell, replaying the ledger in its own order.
	AverageCost CostBasisMethod = iota
	// FIFO (First-In, First-Out) keeps the cost of the lots left over by the
	// date ordered FIFO matching.
	FIFO
)

func (m CostBasisMethod) String() string {
	switch m {
	case AverageCost:
		return "average"
	case FIFO:
		return "fifo"
	default:
		return "unknown"
	}
}

// ParseCostBasisMethod parses a string into a CostBasisMethod.
func ParseCostBasisMethod(s string) (CostBasisMethod, error) {
	switch s {
	case "average":
		return AverageCost, nil
	case "fifo":
		return FIFO, nil
	default:
		return 0, fmt.Errorf("unknown cost basis method: %q", s)
	}
}

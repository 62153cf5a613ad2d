package flash

import "fmt"

// BlockState is the health state of an erase block.
//
// Transitions are monotone: Good → Worn → Bad. A block never moves back
// toward Good; Bad is terminal.
type BlockState int

const (
	// StateGood means the block is healthy and preferred for allocation.
	StateGood BlockState = iota

	// StateWorn means the block's erase count has crossed the worn
	// threshold. Still usable, but deprioritized to delay its failure.
	StateWorn

	// StateBad means the block is quarantined: never selected by the
	// allocator and never targeted by program or erase operations.
	StateBad
)

func (s BlockState) String() string {
	switch s {
	case StateGood:
		return "good"
	case StateWorn:
		return "worn"
	case StateBad:
		return "bad"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Valid reports whether s is one of the defined states.
func (s BlockState) Valid() bool {
	return s == StateGood || s == StateWorn || s == StateBad
}

// BlockRecord is the wear and health bookkeeping for one physical block.
//
// Records are owned by the metadata table; callers always receive copies.
// EraseCount is monotone non-decreasing for the lifetime of the block.
// WriteCount doubles as the next-writable-page cursor and resets to zero
// on every successful erase. BadReason is set exactly once, when State
// becomes StateBad.
type BlockRecord struct {
	BlockID    uint32     `json:"block_id" yaml:"block_id"`
	EraseCount uint32     `json:"erase_count" yaml:"erase_count"`
	WriteCount uint32     `json:"write_count" yaml:"write_count"`
	State      BlockState `json:"state" yaml:"state"`
	BadReason  string     `json:"bad_reason,omitempty" yaml:"bad_reason,omitempty"`
}

// Policy is the process-wide wear-leveling policy, read-only after init.
type Policy struct {
	// MaxEraseCount is the hard erase ceiling. A block reaching it is
	// forced to StateBad.
	MaxEraseCount uint32 `json:"max_erase_count" yaml:"max_erase_count"`

	// WornThreshold is the erase count at which a block transitions from
	// StateGood to StateWorn. Must be below MaxEraseCount.
	WornThreshold uint32 `json:"worn_threshold" yaml:"worn_threshold"`
}

// Validate checks the policy for internal consistency.
func (p Policy) Validate() error {
	if p.MaxEraseCount == 0 {
		return fmt.Errorf("%w: max erase count must be positive", ErrInvalidPolicy)
	}
	if p.WornThreshold == 0 || p.WornThreshold >= p.MaxEraseCount {
		return fmt.Errorf("%w: worn threshold %d must be in (0, %d)",
			ErrInvalidPolicy, p.WornThreshold, p.MaxEraseCount)
	}
	return nil
}

// Stats is an aggregate view over all block records, for monitoring and
// CLI reporting.
type Stats struct {
	TotalBlocks   uint32  `json:"total_blocks" yaml:"total_blocks"`
	GoodBlocks    uint32  `json:"good_blocks" yaml:"good_blocks"`
	WornBlocks    uint32  `json:"worn_blocks" yaml:"worn_blocks"`
	BadBlocks     uint32  `json:"bad_blocks" yaml:"bad_blocks"`
	AvgEraseCount float64 `json:"avg_erase_count" yaml:"avg_erase_count"`
	MaxEraseCount uint32  `json:"max_erase_count" yaml:"max_erase_count"`
}

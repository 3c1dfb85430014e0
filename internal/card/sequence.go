package card

// SequenceAllocator hands out the per-card sequence numbers stamped on every
// chat-surface mutation. Numbers are assigned synchronously at the moment a
// call is issued, so they always reflect program order even when network
// completions arrive out of order. State is scoped to one card and is not
// safe for concurrent use; the owning lifecycle serializes callers.
type SequenceAllocator struct {
	last int64
}

// NewSequenceAllocator starts counting after last. Pass 0 for a fresh card,
// or the persisted watermark when resuming.
func NewSequenceAllocator(last int64) *SequenceAllocator {
	return &SequenceAllocator{last: last}
}

// Next returns the next sequence number. Values are strictly increasing and
// never reused.
func (s *SequenceAllocator) Next() int64 {
	s.last++
	return s.last
}

// Current returns the most recently issued sequence number.
func (s *SequenceAllocator) Current() int64 {
	return s.last
}

package distribution

// StrikesList is the fixed-capacity ring from §3.6: new frames push to the
// front, entries past the operator's current lifetime drop off the back,
// and an all-zero list is pruned entirely. §9 calls this out explicitly as
// the Go replacement for a Python list-like object: "a fixed-capacity ring
// with push_front and resize operations; the zero entry is the sentinel."
type StrikesList []uint8

// PushFront pushes a new strike value (0 or 1) onto the front of the list
// and resizes to lifetime, dropping anything beyond it.
func (s StrikesList) PushFront(value uint8, lifetime int) StrikesList {
	next := make(StrikesList, 0, lifetime)
	next = append(next, value)
	next = append(next, s...)
	if len(next) > lifetime {
		next = next[:lifetime]
	}
	return next
}

// IsAllZero reports whether every entry in the list is the zero sentinel —
// such lists are pruned entirely rather than stored (§3.6).
func (s StrikesList) IsAllZero() bool {
	for _, v := range s {
		if v != 0 {
			return false
		}
	}
	return true
}

// StrikesKey identifies one ring by (operator, pubkey) — the key space
// named in §3.6.
type StrikesKey struct {
	Operator OperatorID
	Pubkey   [48]byte
}

// MergeStrikes implements §4.5 step 6: for every (operator, pubkey) struck
// or cleared this frame, push the new value; for every previously-tracked
// key untouched this frame, push a zero (aging); resize to the operator's
// lifetime; drop all-zero lists.
func MergeStrikes(prev map[StrikesKey]StrikesList, events []StrikeEvent, lifetimeByOperator map[OperatorID]int) map[StrikesKey]StrikesList {
	touched := make(map[StrikesKey]bool, len(events))
	next := make(map[StrikesKey]StrikesList, len(prev))

	lifetimeFor := func(op OperatorID) int {
		if l, ok := lifetimeByOperator[op]; ok && l > 0 {
			return l
		}
		return 6
	}

	for _, ev := range events {
		key := StrikesKey{Operator: ev.Operator, Pubkey: ev.Pubkey}
		touched[key] = true
		value := uint8(0)
		if ev.Struck {
			value = 1
		}
		list := prev[key].PushFront(value, lifetimeFor(ev.Operator))
		if !list.IsAllZero() {
			next[key] = list
		}
	}

	for key, list := range prev {
		if touched[key] {
			continue
		}
		aged := list.PushFront(0, lifetimeFor(key.Operator))
		if !aged.IsAllZero() {
			next[key] = aged
		}
	}

	return next
}

package feed

// HoleHistory is a 2-bit shift register of hole sensor samples. A transition is
// accepted only when the two most recent samples agree, which rejects a single
// noisy sample without slowing the feed with a time-based debounce.
type HoleHistory struct {
	bits uint8
	n    uint8 // valid samples, saturates at 2
}

// Reset forgets all samples.
func (h *HoleHistory) Reset() {
	*h = HoleHistory{}
}

// Push shifts in one sample (true = hole present).
func (h *HoleHistory) Push(hole bool) {
	h.bits = (h.bits << 1) & 0x03
	if hole {
		h.bits |= 0x01
	}
	if h.n < 2 {
		h.n++
	}
}

// Settled reports whether the last two samples both equal hole.
func (h HoleHistory) Settled(hole bool) bool {
	if h.n < 2 {
		return false
	}
	if hole {
		return h.bits == 0x03
	}
	return h.bits == 0x00
}

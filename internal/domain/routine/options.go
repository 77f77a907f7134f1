package routine

// Option applies a configuration option to the Miner.
type Option func(*Miner)

// WithNGramBounds sets the minimum and maximum pattern length.
func WithNGramBounds(nMin, nMax int) Option {
	return func(m *Miner) {
		if nMin > 0 && nMax >= nMin {
			m.nMin = nMin
			m.nMax = nMax
		}
	}
}

// WithMinSupport sets the distinct-session threshold for keeping a
// pattern.
func WithMinSupport(minSupport int) Option {
	return func(m *Miner) {
		if minSupport > 0 {
			m.minSupport = minSupport
		}
	}
}

// WithMaxPatterns caps the size of the emitted candidate set.
func WithMaxPatterns(limit int) Option {
	return func(m *Miner) {
		if limit > 0 {
			m.maxPatterns = limit
		}
	}
}

// WithMaxEvidence caps the evidence session list per candidate.
func WithMaxEvidence(limit int) Option {
	return func(m *Miner) {
		if limit > 0 {
			m.maxEvidence = limit
		}
	}
}

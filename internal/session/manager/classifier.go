package manager

// Disposition is the classification of a connection close reason.
type Disposition int

const (
	// DispositionTransient closes are retried with exponential backoff.
	DispositionTransient Disposition = iota
	// DispositionRestart closes re-dial after a short fixed delay without
	// consuming a retry attempt (the network asked for a restart mid-pairing).
	DispositionRestart
	// DispositionTerminal closes end the session permanently (logged out).
	DispositionTerminal
)

func (d Disposition) String() string {
	switch d {
	case DispositionRestart:
		return "restart"
	case DispositionTerminal:
		return "terminal"
	default:
		return "transient"
	}
}

// Classifier maps close reason codes to dispositions. Codes not listed in
// either set are transient.
type Classifier struct {
	terminal map[int]struct{}
	restart  map[int]struct{}
}

// NewClassifier builds a Classifier from the configured code sets. A code
// present in both sets is treated as terminal.
func NewClassifier(terminalCodes, restartCodes []int) *Classifier {
	c := &Classifier{
		terminal: make(map[int]struct{}, len(terminalCodes)),
		restart:  make(map[int]struct{}, len(restartCodes)),
	}
	for _, code := range terminalCodes {
		c.terminal[code] = struct{}{}
	}
	for _, code := range restartCodes {
		c.restart[code] = struct{}{}
	}
	return c
}

func (c *Classifier) Classify(code int) Disposition {
	if _, ok := c.terminal[code]; ok {
		return DispositionTerminal
	}
	if _, ok := c.restart[code]; ok {
		return DispositionRestart
	}
	return DispositionTransient
}

package upload

// Events carries the optional lifecycle callbacks of an upload session.
// Any field may be nil. Callbacks run on the Execute goroutine (Stopped on
// the Stop caller's goroutine) and must not block.
//
// Ordering guarantee: every PortionUploaded fires before CompleteUpload.
type Events struct {
	// PortionUploaded fires once per finalized portion, in ledger order.
	PortionUploaded func(p *Portion)

	// CompleteUpload fires once after the last portion, with the full
	// ledger and the resolved channel id. Not fired after Stop.
	CompleteUpload func(parts []*Portion, channelID string)

	// Stopped fires once when Stop interrupts a running Execute. A Stop
	// outside of an execution flips the abort flag silently.
	Stopped func()
}

func (e Events) portionUploaded(p *Portion) {
	if e.PortionUploaded != nil {
		e.PortionUploaded(p)
	}
}

func (e Events) completeUpload(parts []*Portion, channelID string) {
	if e.CompleteUpload != nil {
		e.CompleteUpload(parts, channelID)
	}
}

func (e Events) stopped() {
	if e.Stopped != nil {
		e.Stopped()
	}
}

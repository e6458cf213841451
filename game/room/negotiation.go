package room

// Negotiation collects restart consents. Two distinct consents trigger a
// restart; a rejection, a new request or a roster change wipes them.
type Negotiation struct {
	requested bool
	consents  map[string]struct{}
}

// Request opens a new negotiation round
func (n *Negotiation) Request() {
	n.Reset()
	n.requested = true
}

// Accept records a consent and reports whether both sides have now agreed.
// When they have, the negotiation is reset.
func (n *Negotiation) Accept(sessionID string) bool {
	if n.consents == nil {
		n.consents = make(map[string]struct{}, 2)
	}
	n.consents[sessionID] = struct{}{}
	if len(n.consents) >= 2 {
		n.Reset()
		return true
	}
	return false
}

// Reset drops every consent and the pending request
func (n *Negotiation) Reset() {
	n.requested = false
	clear(n.consents)
}

// Pending returns how many sessions have consented so far
func (n *Negotiation) Pending() int {
	return len(n.consents)
}

// Requested reports whether a restart request is open
func (n *Negotiation) Requested() bool {
	return n.requested
}

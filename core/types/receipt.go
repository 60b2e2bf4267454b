package types

import "time"

// Receipt is the durable record of one committed ledger operation.
type Receipt struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"`
	Caller    string    `json:"caller"`
	Events    []*Event  `json:"events"`
	At        time.Time `json:"at"`
}

// EventsOfType returns the receipt events matching typ in emission order.
func (r *Receipt) EventsOfType(typ string) []*Event {
	if r == nil {
		return nil
	}
	var out []*Event
	for _, evt := range r.Events {
		if evt != nil && evt.Type == typ {
			out = append(out, evt)
		}
	}
	return out
}

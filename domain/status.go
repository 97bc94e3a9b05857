package domain

// Status is the delivery state of a message.
// The only legal transitions are forward: sent -> delivered -> seen.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
)

func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusSeen:
		return 3
	default:
		return 0
	}
}

func (s Status) IsValid() bool { return s.rank() > 0 }

// CanAdvanceTo is the single rule guarding every status write.
// Equal or backward transitions are refused.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.IsValid() && next.rank() > s.rank()
}

// Below returns the statuses a message must currently have for a write of s to apply.
func (s Status) Below() []Status {
	var lower []Status
	for _, candidate := range []Status{StatusSent, StatusDelivered, StatusSeen} {
		if candidate.CanAdvanceTo(s) {
			lower = append(lower, candidate)
		}
	}
	return lower
}

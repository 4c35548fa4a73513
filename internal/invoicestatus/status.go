// Package invoicestatus holds the invoice lifecycle: the closed set of statuses,
// the transition graph and the predicates used to gate invoice mutations.
//
// Every predicate is an exhaustive switch over Status. Adding a status means
// revisiting each switch below; the zero value Unknown is what legacy or
// corrupted strings parse to and it is locked for every operation.
package invoicestatus

import (
	"strings"
)

type Status uint8

const (
	Unknown Status = iota
	Draft
	Issued
	Sent
	Notified
	Accepted
	Rejected
	Cancelled
)

// Known statuses in lifecycle order
var all = []Status{Draft, Issued, Sent, Notified, Accepted, Rejected, Cancelled}

func Values() []Status {
	out := make([]Status, len(all))
	copy(out, all)
	return out
}

// Parse never fails: unrecognized input becomes Unknown
func Parse(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "draft":
		return Draft
	case "issued":
		return Issued
	case "sent":
		return Sent
	case "notified":
		return Notified
	case "accepted":
		return Accepted
	case "rejected":
		return Rejected
	case "cancelled":
		return Cancelled
	default:
		return Unknown
	}
}

func (s Status) String() string {
	switch s {
	case Draft:
		return "draft"
	case Issued:
		return "issued"
	case Sent:
		return "sent"
	case Notified:
		return "notified"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Cancelled:
		return "cancelled"
	case Unknown:
		return "unknown"
	default:
		return "unknown"
	}
}

func (s Status) Known() bool {
	return s != Unknown && s <= Cancelled
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	*s = Parse(string(text))
	return nil
}

// IsEditable reports whether invoice content may still change
func (s Status) IsEditable() bool {
	switch s {
	case Draft, Issued:
		return true
	case Sent, Notified, Accepted, Rejected, Cancelled, Unknown:
		return false
	default:
		return false
	}
}

// IsCancellable reports whether the invoice may be voided
// Once the client is notified the invoice can only be accepted or rejected
func (s Status) IsCancellable() bool {
	switch s {
	case Draft, Issued, Sent:
		return true
	case Notified, Accepted, Rejected, Cancelled, Unknown:
		return false
	default:
		return false
	}
}

// IsRejectable reports whether the client may still refuse the invoice
func (s Status) IsRejectable() bool {
	switch s {
	case Sent, Notified:
		return true
	case Draft, Issued, Accepted, Rejected, Cancelled, Unknown:
		return false
	default:
		return false
	}
}

func (s Status) IsTerminal() bool {
	switch s {
	case Accepted, Rejected, Cancelled:
		return true
	case Draft, Issued, Sent, Notified, Unknown:
		return false
	default:
		return false
	}
}

// AlreadyNotified reports whether the client has been informed about the invoice
func (s Status) AlreadyNotified() bool {
	switch s {
	case Notified, Accepted, Rejected:
		return true
	case Draft, Issued, Sent, Cancelled, Unknown:
		return false
	default:
		return false
	}
}

// Next returns the successor on the happy path draft → issued → sent → notified → accepted
func (s Status) Next() (Status, bool) {
	switch s {
	case Draft:
		return Issued, true
	case Issued:
		return Sent, true
	case Sent:
		return Notified, true
	case Notified:
		return Accepted, true
	case Accepted, Rejected, Cancelled, Unknown:
		return Unknown, false
	default:
		return Unknown, false
	}
}

// CanTransition reports whether 'to' is reachable from 's' in one step
func (s Status) CanTransition(to Status) bool {
	if next, ok := s.Next(); ok && next == to {
		return true
	}

	switch to {
	case Cancelled:
		return s.IsCancellable()
	case Rejected:
		return s.IsRejectable()
	default:
		return false
	}
}

// Auditor is anything that knows whether it acts on behalf of the office staff
type Auditor interface {
	IsStaff() bool
}

// IsAuditable reports whether the status history may be read
// Only the role matters: the trail stays readable whatever the status is
func IsAuditable(a Auditor, _ Status) bool {
	return a != nil && a.IsStaff()
}

// String based helpers for callers holding raw values (templates, legacy rows)

func IsEditable(raw string) bool { return Parse(raw).IsEditable() }

func IsCancellable(raw string) bool { return Parse(raw).IsCancellable() }

func NextStatus(raw string) (Status, bool) { return Parse(raw).Next() }

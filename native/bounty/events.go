package bounty

import (
	"strconv"
)

// Event represents a typed event emitted during bounty state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(*Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(*Event) {}

const (
	EventTypeBountyCreated   = "bounty.created"
	EventTypeBountyBoosted   = "bounty.boosted"
	EventTypeBountyAccepted  = "bounty.accepted"
	EventTypeBountyClaimed   = "bounty.claimed"
	EventTypeBountyCancelled = "bounty.cancelled"
	EventTypeEscrowCreated   = "bounty.escrow.created"
	EventTypeEscrowFinished  = "bounty.escrow.finished"
	EventTypeEscrowCancelled = "bounty.escrow.cancelled"
)

// NewCreatedEvent returns the canonical payload for a newly created bounty.
func NewCreatedEvent(b *Bounty) *Event { return newBountyEvent(EventTypeBountyCreated, b) }

// NewBoostedEvent returns the payload emitted when a contribution is added to
// an open bounty.
func NewBoostedEvent(b *Bounty, c *Contribution) *Event {
	evt := newBountyEvent(EventTypeBountyBoosted, b)
	if c != nil {
		evt.Attributes["contributionId"] = c.ID.String()
		if c.Amount != nil {
			evt.Attributes["contributionAmount"] = c.Amount.String()
		}
	}
	return evt
}

// NewAcceptedEvent returns the payload emitted when a developer accepts the
// bounty and its escrows are live. The developer secret never appears here.
func NewAcceptedEvent(b *Bounty) *Event { return newBountyEvent(EventTypeBountyAccepted, b) }

// NewClaimedEvent returns the payload emitted when the bounty settles in the
// developer's favour.
func NewClaimedEvent(b *Bounty) *Event { return newBountyEvent(EventTypeBountyClaimed, b) }

// NewCancelledEvent returns the payload emitted when an open bounty is
// cancelled.
func NewCancelledEvent(b *Bounty) *Event { return newBountyEvent(EventTypeBountyCancelled, b) }

// NewEscrowCreatedEvent returns the payload for a single contribution escrow
// going live on the ledger.
func NewEscrowCreatedEvent(c *Contribution) *Event {
	return newEscrowEvent(EventTypeEscrowCreated, c)
}

// NewEscrowFinishedEvent returns the payload for a contribution escrow being
// released to the developer.
func NewEscrowFinishedEvent(c *Contribution) *Event {
	return newEscrowEvent(EventTypeEscrowFinished, c)
}

// NewEscrowCancelledEvent returns the payload for a contribution escrow being
// cancelled back to the contributor.
func NewEscrowCancelledEvent(c *Contribution) *Event {
	return newEscrowEvent(EventTypeEscrowCancelled, c)
}

func newBountyEvent(eventType string, b *Bounty) *Event {
	attrs := make(map[string]string)
	if b == nil {
		return &Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeBounty(b)
	if err != nil {
		return &Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(sanitized.ID, 10)
	attrs["funder"] = sanitized.Funder
	attrs["issueUrl"] = sanitized.IssueURL
	attrs["amount"] = sanitized.Amount.String()
	attrs["status"] = sanitized.Status.String()
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	if sanitized.DeveloperAddress != "" {
		attrs["developer"] = sanitized.DeveloperAddress
	}
	return &Event{Type: eventType, Attributes: attrs}
}

func newEscrowEvent(eventType string, c *Contribution) *Event {
	attrs := make(map[string]string)
	if c == nil {
		return &Event{Type: eventType, Attributes: attrs}
	}
	attrs["contributionId"] = c.ID.String()
	attrs["bountyId"] = strconv.FormatUint(c.BountyID, 10)
	attrs["contributor"] = c.ContributorAddress
	if c.Amount != nil {
		attrs["amount"] = c.Amount.String()
	}
	attrs["escrowStatus"] = c.EscrowStatus.String()
	if c.Escrow != nil {
		attrs["txHash"] = c.Escrow.TxHash
		attrs["offerSequence"] = strconv.FormatUint(uint64(c.Escrow.OfferSequence), 10)
	}
	return &Event{Type: eventType, Attributes: attrs}
}

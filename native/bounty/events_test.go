package bounty

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/google/uuid"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []*Event
}

func (c *captureEmitter) Emit(evt *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.Type)
	}
	return out
}

func TestLifecycleEmitsEvents(t *testing.T) {
	engine, _, _, fetcher := newTestEngine(t)
	emitter := &captureEmitter{}
	engine.SetEmitter(emitter)
	ctx := context.Background()

	b := createTestBounty(t, engine, 10)
	if _, err := engine.Boost(ctx, b.ID, BoostParams{Contributor: "bob", ContributorAddress: boosterAddr, Amount: big.NewInt(5)}); err != nil {
		t.Fatalf("boost: %v", err)
	}
	result, err := engine.Accept(ctx, b.ID, devAddr)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	fetcher.set(testPullURL, &MergeRequest{Title: "closes #42", Body: result.DeveloperSecret, Merged: true})
	if _, err := engine.Claim(ctx, b.ID, testPullURL); err != nil {
		t.Fatalf("claim: %v", err)
	}

	counts := make(map[string]int)
	for _, typ := range emitter.types() {
		counts[typ]++
	}
	want := map[string]int{
		EventTypeBountyCreated:  1,
		EventTypeBountyBoosted:  1,
		EventTypeBountyAccepted: 1,
		EventTypeBountyClaimed:  1,
		EventTypeEscrowCreated:  2,
		EventTypeEscrowFinished: 2,
	}
	for typ, n := range want {
		if counts[typ] != n {
			t.Fatalf("expected %d %s events, got %d", n, typ, counts[typ])
		}
	}
}

func TestEscrowCreatedEmittedOncePerContribution(t *testing.T) {
	engine, _, gateway, _ := newTestEngine(t)
	emitter := &captureEmitter{}
	engine.SetEmitter(emitter)
	ctx := context.Background()

	b := createTestBounty(t, engine, 10)
	if _, err := engine.Boost(ctx, b.ID, BoostParams{Contributor: "bob", ContributorAddress: boosterAddr, Amount: big.NewInt(5)}); err != nil {
		t.Fatalf("boost: %v", err)
	}
	gateway.failCreate(boosterAddr, &LedgerError{Op: "create", Code: "tecUNFUNDED", Retryable: false})

	// First accept creates the funder's escrow but fails the booster's.
	// No escrow events fire until the accept completes.
	if _, err := engine.Accept(ctx, b.ID, devAddr); err == nil {
		t.Fatalf("expected partial failure")
	}
	counts := make(map[string]int)
	for _, typ := range emitter.types() {
		counts[typ]++
	}
	if counts[EventTypeEscrowCreated] != 0 {
		t.Fatalf("no escrow events may fire on partial failure, got %d", counts[EventTypeEscrowCreated])
	}

	if _, err := engine.Accept(ctx, b.ID, devAddr); err != nil {
		t.Fatalf("retry accept: %v", err)
	}
	counts = make(map[string]int)
	for _, typ := range emitter.types() {
		counts[typ]++
	}
	if counts[EventTypeEscrowCreated] != 2 {
		t.Fatalf("expected exactly one escrow event per contribution, got %d", counts[EventTypeEscrowCreated])
	}
	if counts[EventTypeBountyAccepted] != 1 {
		t.Fatalf("expected 1 accepted event, got %d", counts[EventTypeBountyAccepted])
	}
}

func TestCancelEmitsEvent(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	emitter := &captureEmitter{}
	engine.SetEmitter(emitter)

	b := createTestBounty(t, engine, 10)
	if err := engine.Cancel(context.Background(), b.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	types := emitter.types()
	if types[len(types)-1] != EventTypeBountyCancelled {
		t.Fatalf("expected final event %s, got %v", EventTypeBountyCancelled, types)
	}
}

func TestEventsNeverCarryTheSecret(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	emitter := &captureEmitter{}
	engine.SetEmitter(emitter)

	b := createTestBounty(t, engine, 10)
	result, err := engine.Accept(context.Background(), b.ID, devAddr)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	for _, evt := range emitter.events {
		for key, value := range evt.Attributes {
			if value == result.DeveloperSecret {
				t.Fatalf("event %s leaks the developer secret via %s", evt.Type, key)
			}
		}
	}
}

func TestBountyEventAttributes(t *testing.T) {
	b := &Bounty{
		ID:        7,
		Funder:    "alice",
		IssueURL:  testIssueURL,
		Amount:    big.NewInt(10),
		Status:    StatusOpen,
		CreatedAt: 1_700_000_000,
	}
	evt := NewCreatedEvent(b)
	if evt.Type != EventTypeBountyCreated {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if evt.Attributes["id"] != "7" || evt.Attributes["amount"] != "10" || evt.Attributes["status"] != "open" {
		t.Fatalf("unexpected attributes %v", evt.Attributes)
	}
	if _, ok := evt.Attributes["developer"]; ok {
		t.Fatalf("developer attribute must be absent before acceptance")
	}
}

func TestEscrowEventAttributes(t *testing.T) {
	c := &Contribution{
		ID:                 uuid.New(),
		BountyID:           7,
		ContributorAddress: funderAddr,
		Amount:             big.NewInt(10),
		EscrowStatus:       EscrowCreated,
		Escrow:             &EscrowHandle{TxHash: "TXABC", OfferSequence: 3},
	}
	evt := NewEscrowCreatedEvent(c)
	if evt.Attributes["txHash"] != "TXABC" || evt.Attributes["offerSequence"] != "3" {
		t.Fatalf("unexpected escrow attributes %v", evt.Attributes)
	}
	if evt.Attributes["escrowStatus"] != "created" {
		t.Fatalf("unexpected escrow status attribute %v", evt.Attributes)
	}
}

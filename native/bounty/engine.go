package bounty

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// State is the persistence backend the engine drives. Implementations must
// guarantee that TransitionBounty only commits when the stored status still
// matches the expected prior status, returning ErrConcurrentModification
// otherwise.
type State interface {
	PutBounty(b *Bounty) error
	GetBounty(id uint64) (*Bounty, bool, error)
	TransitionBounty(b *Bounty, from BountyStatus) error
	AppendContribution(c *Contribution) error
	ContributionsByBounty(bountyID uint64) ([]*Contribution, error)
	UpdateContributionEscrow(id uuid.UUID, handle *EscrowHandle, status EscrowStatus, conditionHex string) error
	AddFunderStats(address string, amount *big.Int) error
	AddDeveloperStats(address string, amount *big.Int) error
}

// EscrowCreateRequest carries the ledger-native parameters for one
// conditional escrow creation. Reference is the caller-supplied idempotency
// key derived from the contribution.
type EscrowCreateRequest struct {
	Source       string
	Destination  string
	Amount       *big.Int
	ConditionHex string
	CancelAfter  time.Time
	Reference    string
}

// EscrowFinishRequest releases a previously created escrow with the
// fulfillment proof.
type EscrowFinishRequest struct {
	Owner          string
	Handle         EscrowHandle
	ConditionHex   string
	FulfillmentHex string
}

// EscrowCancelRequest returns an escrow to its owner.
type EscrowCancelRequest struct {
	Owner  string
	Handle EscrowHandle
}

// LedgerGateway is the external escrow capability the engine consumes. All
// calls are network operations; implementations classify failures via
// LedgerError so the engine knows what is worth retrying. FindEscrow returns
// (nil, nil) when no escrow matches the reference.
type LedgerGateway interface {
	CreateEscrow(ctx context.Context, req EscrowCreateRequest) (*EscrowHandle, error)
	FinishEscrow(ctx context.Context, req EscrowFinishRequest) error
	CancelEscrow(ctx context.Context, req EscrowCancelRequest) error
	FindEscrow(ctx context.Context, source, reference string) (*EscrowHandle, error)
	Reserve(ctx context.Context, address string) (*big.Int, error)
}

// MergeRequestFetcher retrieves the text of a submitted merge request. The
// engine depends only on the returned blob.
type MergeRequestFetcher interface {
	FetchMergeRequest(ctx context.Context, url string) (*MergeRequest, error)
}

// Retry and fan-out policy for per-contribution ledger calls.
const (
	defaultMaxAttempts  = 3
	defaultFanoutWidth  = 4
	retryBackoffBase    = 500 * time.Millisecond
	retryBackoffCeiling = 5 * time.Second
)

// defaultReserveFloor is the minimum ledger reserve (in drops) a developer
// address must hold to receive escrow completions.
var defaultReserveFloor = big.NewInt(10_000_000)

// Engine drives the bounty escrow lifecycle: it turns funder and contributor
// intent into ledger escrow transactions and resolves them on claim or
// cancellation. All state mutation goes through the engine under a per-bounty
// lock.
type Engine struct {
	state        State
	ledger       *Ledger
	gateway      LedgerGateway
	fetcher      MergeRequestFetcher
	emitter      Emitter
	locks        *keyedLocks
	nowFn        func() int64
	backoffFn    func(attempt int) time.Duration
	maxAttempts  int
	fanoutWidth  int
	reserveFloor *big.Int
}

// NewEngine creates a bounty engine with a no-op emitter. Callers wire the
// state backend, ledger gateway and merge request fetcher via the setters.
func NewEngine() *Engine {
	return &Engine{
		emitter:      NoopEmitter{},
		locks:        newKeyedLocks(),
		nowFn:        func() int64 { return time.Now().Unix() },
		backoffFn:    backoffDuration,
		maxAttempts:  defaultMaxAttempts,
		fanoutWidth:  defaultFanoutWidth,
		reserveFloor: new(big.Int).Set(defaultReserveFloor),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) {
	e.state = state
	e.ledger = NewLedger(state)
}

// SetGateway configures the ledger gateway used for escrow calls.
func (e *Engine) SetGateway(gw LedgerGateway) { e.gateway = gw }

// SetFetcher configures the merge request fetcher used by claim verification.
func (e *Engine) SetFetcher(f MergeRequestFetcher) { e.fetcher = f }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter Emitter) {
	if emitter == nil {
		e.emitter = NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetReserveFloor overrides the minimum developer reserve requirement.
func (e *Engine) SetReserveFloor(floor *big.Int) {
	if floor == nil {
		e.reserveFloor = new(big.Int).Set(defaultReserveFloor)
		return
	}
	e.reserveFloor = new(big.Int).Set(floor)
}

func (e *Engine) emit(evt *Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadBounty(id uint64) (*Bounty, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	b, ok, err := e.state.GetBounty(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBountyNotFound
	}
	return b, nil
}

// CreateParams describes a new bounty and its initial contribution.
type CreateParams struct {
	Funder        string
	FunderAddress string
	Title         string
	Description   string
	IssueURL      string
	Amount        *big.Int
	TimeLimit     time.Duration
}

// Create opens a new bounty with a single initial contribution from the
// funder. No escrow exists until the bounty is accepted.
func (e *Engine) Create(ctx context.Context, params CreateParams) (*Bounty, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if strings.TrimSpace(params.FunderAddress) == "" {
		return nil, &ValidationError{Field: "funder_address", Reason: "must not be empty"}
	}
	if _, err := ExtractIssueNumber(params.IssueURL); err != nil {
		return nil, err
	}
	now := e.now()
	b := &Bounty{
		Funder:        params.Funder,
		FunderAddress: strings.TrimSpace(params.FunderAddress),
		Title:         strings.TrimSpace(params.Title),
		Description:   params.Description,
		IssueURL:      strings.TrimSpace(params.IssueURL),
		Amount:        new(big.Int).Set(params.Amount),
		TimeLimit:     ClampTimeLimit(params.TimeLimit),
		Status:        StatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.state.PutBounty(b); err != nil {
		return nil, err
	}
	contrib := &Contribution{
		ID:                 uuid.New(),
		BountyID:           b.ID,
		Contributor:        params.Funder,
		ContributorAddress: b.FunderAddress,
		Amount:             new(big.Int).Set(params.Amount),
		EscrowStatus:       EscrowPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := e.ledger.Append(contrib); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(b))
	return b.Clone(), nil
}

// BoostParams describes an additional contribution to an open bounty.
type BoostParams struct {
	Contributor        string
	ContributorAddress string
	Amount             *big.Int
}

// Boost appends a contribution to an open bounty and recomputes the derived
// amount. The bounty's funder may not boost their own bounty.
func (e *Engine) Boost(ctx context.Context, bountyID uint64, params BoostParams) (*Contribution, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if strings.TrimSpace(params.ContributorAddress) == "" {
		return nil, &ValidationError{Field: "contributor_address", Reason: "must not be empty"}
	}
	release := e.locks.Acquire(bountyID)
	defer release()

	b, err := e.loadBounty(bountyID)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusOpen {
		return nil, &InvalidStateError{BountyID: bountyID, Status: b.Status, Op: "boost"}
	}
	if params.Contributor != "" && params.Contributor == b.Funder {
		return nil, &ValidationError{Field: "contributor", Reason: "funder cannot boost their own bounty"}
	}
	now := e.now()
	contrib := &Contribution{
		ID:                 uuid.New(),
		BountyID:           bountyID,
		Contributor:        params.Contributor,
		ContributorAddress: strings.TrimSpace(params.ContributorAddress),
		Amount:             new(big.Int).Set(params.Amount),
		EscrowStatus:       EscrowPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := e.ledger.Append(contrib); err != nil {
		return nil, err
	}
	if err := e.refreshAmount(b); err != nil {
		return nil, err
	}
	e.emit(NewBoostedEvent(b, contrib))
	return contrib.Clone(), nil
}

// refreshAmount recomputes the denormalised bounty amount from the
// contribution list and persists it.
func (e *Engine) refreshAmount(b *Bounty) error {
	contribs, err := e.ledger.ListByBounty(b.ID)
	if err != nil {
		return err
	}
	b.Amount = TotalAmount(contribs)
	b.UpdatedAt = e.now()
	return e.state.PutBounty(b)
}

// AcceptResult reports a successful acceptance. The developer secret is
// returned exactly once here; afterwards it is retrievable only through
// DeveloperSecret by the accepted developer.
type AcceptResult struct {
	DeveloperSecret string
	CancelAfter     time.Time
	Outcomes        []ContributionOutcome
}

// Accept assigns a developer to an open bounty and creates one conditional
// escrow per contribution, all sharing a single release condition. Escrow
// creations run concurrently with bounded width; each is retried on transient
// ledger errors and checked for an existing escrow before creation so retries
// never duplicate. If any creation still fails, the bounty stays open,
// successes are left in place, and a PartialFailureError enumerates the
// failed subset.
func (e *Engine) Accept(ctx context.Context, bountyID uint64, developerAddress string) (*AcceptResult, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.gateway == nil {
		return nil, errNilGateway
	}
	developerAddress = strings.TrimSpace(developerAddress)
	if developerAddress == "" {
		return nil, &ValidationError{Field: "developer_address", Reason: "must not be empty"}
	}
	release := e.locks.Acquire(bountyID)
	defer release()

	b, err := e.loadBounty(bountyID)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusOpen {
		return nil, &InvalidStateError{BountyID: bountyID, Status: b.Status, Op: "accept"}
	}

	reserve, err := e.gateway.Reserve(ctx, developerAddress)
	if err != nil {
		return nil, err
	}
	if reserve == nil || reserve.Cmp(e.reserveFloor) < 0 {
		got := "0"
		if reserve != nil {
			got = reserve.String()
		}
		return nil, &InsufficientReserveError{
			Address:  developerAddress,
			Reserve:  got,
			Required: e.reserveFloor.String(),
		}
	}

	contribs, err := e.ledger.ListByBounty(bountyID)
	if err != nil {
		return nil, err
	}

	// One condition for the whole bounty: a single fulfillment finishes
	// every escrow. Reuse the stored condition on retry after a partial
	// failure so already-created escrows stay finishable. The developer
	// address is pinned alongside it: escrows already on the ledger pay
	// that address, so a retry naming anyone else is refused.
	conditionHex := b.ConditionHex
	preimageHex := b.PreimageHex
	secret := b.DeveloperSecret
	if conditionHex == "" {
		cond, err := GenerateCondition()
		if err != nil {
			return nil, err
		}
		conditionHex = cond.ConditionHex
		preimageHex = cond.PreimageHex
		secret, err = GenerateDeveloperSecret()
		if err != nil {
			return nil, err
		}
		b.ConditionHex = conditionHex
		b.PreimageHex = preimageHex
		b.DeveloperSecret = secret
		b.DeveloperAddress = developerAddress
		b.UpdatedAt = e.now()
		if err := e.state.PutBounty(b); err != nil {
			return nil, err
		}
	} else if b.DeveloperAddress != developerAddress {
		return nil, &ValidationError{
			Field:  "developer_address",
			Reason: "does not match the developer from an earlier accept attempt",
		}
	}

	cancelAfter := time.Unix(e.now(), 0).Add(ClampTimeLimit(b.TimeLimit))
	outcomes := e.fanout(ctx, contribs, func(ctx context.Context, c *Contribution) (*EscrowHandle, error) {
		return e.createContributionEscrow(ctx, c, developerAddress, conditionHex, cancelAfter)
	})

	succeeded, failed := splitOutcomes(outcomes)
	for _, out := range succeeded {
		if err := e.ledger.UpdateEscrow(out.ContributionID, out.Handle, EscrowCreated, conditionHex); err != nil {
			return nil, err
		}
	}
	for _, out := range failed {
		if err := e.ledger.UpdateEscrow(out.ContributionID, nil, EscrowFailed, conditionHex); err != nil {
			return nil, err
		}
	}
	if len(failed) > 0 {
		return nil, &PartialFailureError{Op: "accept", BountyID: bountyID, Succeeded: succeeded, Failed: failed}
	}

	prior := b.Status
	b.DeveloperAddress = developerAddress
	b.Status = StatusAccepted
	b.UpdatedAt = e.now()
	if err := e.state.TransitionBounty(b, prior); err != nil {
		return nil, err
	}
	for _, c := range contribs {
		c.EscrowStatus = EscrowCreated
		e.emit(NewEscrowCreatedEvent(c))
	}
	e.emit(NewAcceptedEvent(b))
	return &AcceptResult{DeveloperSecret: secret, CancelAfter: cancelAfter, Outcomes: succeeded}, nil
}

// createContributionEscrow creates the ledger escrow for one contribution,
// checking for an existing escrow under the contribution's deterministic
// reference first. A timeout on a previous attempt may mean the escrow went
// through, so the check runs before every attempt.
func (e *Engine) createContributionEscrow(ctx context.Context, c *Contribution, developerAddress, conditionHex string, cancelAfter time.Time) (*EscrowHandle, error) {
	if c.EscrowStatus == EscrowCreated && c.Escrow != nil {
		return c.Escrow, nil
	}
	reference := c.Reference()
	var handle *EscrowHandle
	err := e.withRetry(ctx, func(ctx context.Context) error {
		if existing, findErr := e.gateway.FindEscrow(ctx, c.ContributorAddress, reference); findErr == nil && existing != nil {
			handle = existing
			return nil
		}
		created, err := e.gateway.CreateEscrow(ctx, EscrowCreateRequest{
			Source:       c.ContributorAddress,
			Destination:  developerAddress,
			Amount:       new(big.Int).Set(c.Amount),
			ConditionHex: conditionHex,
			CancelAfter:  cancelAfter,
			Reference:    reference,
		})
		if err != nil {
			return err
		}
		handle = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// ClaimResult reports a successful claim.
type ClaimResult struct {
	Outcomes []ContributionOutcome
}

// Claim verifies the submitted merge request and finishes every created
// escrow with the shared fulfillment. On verification failure the bounty
// stays accepted and the claim may be resubmitted. On partial escrow-finish
// failure the bounty also stays accepted; finished escrows are recorded so a
// retry only touches the remainder. Funder and developer aggregate statistics
// are updated as part of the claimed transition.
func (e *Engine) Claim(ctx context.Context, bountyID uint64, mergeRequestURL string) (*ClaimResult, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.gateway == nil {
		return nil, errNilGateway
	}
	if e.fetcher == nil {
		return nil, errNilFetcher
	}
	if !ValidMergeRequestURL(mergeRequestURL) {
		return nil, &ValidationError{Field: "merge_request_url", Reason: "not a GitHub pull request URL"}
	}
	release := e.locks.Acquire(bountyID)
	defer release()

	b, err := e.loadBounty(bountyID)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusAccepted {
		return nil, &InvalidStateError{BountyID: bountyID, Status: b.Status, Op: "claim"}
	}
	issueNumber, err := ExtractIssueNumber(b.IssueURL)
	if err != nil {
		return nil, err
	}
	if b.DeveloperSecret == "" || b.PreimageHex == "" {
		return nil, ErrSecretUnavailable
	}

	mr, err := e.fetcher.FetchMergeRequest(ctx, mergeRequestURL)
	if err != nil {
		return nil, err
	}
	if err := VerifyClaim(mr, issueNumber, b.DeveloperSecret); err != nil {
		return nil, err
	}

	fulfillmentHex, err := Fulfillment(b.PreimageHex)
	if err != nil {
		return nil, err
	}
	contribs, err := e.ledger.ListByBounty(bountyID)
	if err != nil {
		return nil, err
	}
	pending := make([]*Contribution, 0, len(contribs))
	for _, c := range contribs {
		if c.EscrowStatus == EscrowCreated {
			pending = append(pending, c)
		}
	}

	conditionHex := b.ConditionHex
	outcomes := e.fanout(ctx, pending, func(ctx context.Context, c *Contribution) (*EscrowHandle, error) {
		if c.Escrow == nil {
			return nil, &LedgerError{Op: "finish", Code: "missing_handle", Retryable: false}
		}
		err := e.withRetry(ctx, func(ctx context.Context) error {
			return e.gateway.FinishEscrow(ctx, EscrowFinishRequest{
				Owner:          c.ContributorAddress,
				Handle:         *c.Escrow,
				ConditionHex:   conditionHex,
				FulfillmentHex: fulfillmentHex,
			})
		})
		if err != nil {
			return nil, err
		}
		return c.Escrow, nil
	})

	succeeded, failed := splitOutcomes(outcomes)
	for _, out := range succeeded {
		if err := e.ledger.UpdateEscrow(out.ContributionID, out.Handle, EscrowFinished, conditionHex); err != nil {
			return nil, err
		}
	}
	if len(failed) > 0 {
		return nil, &PartialFailureError{Op: "claim", BountyID: bountyID, Succeeded: succeeded, Failed: failed}
	}

	prior := b.Status
	b.Status = StatusClaimed
	b.UpdatedAt = e.now()
	if err := e.state.TransitionBounty(b, prior); err != nil {
		return nil, err
	}
	for _, c := range contribs {
		if err := e.state.AddFunderStats(c.ContributorAddress, c.Amount); err != nil {
			return nil, err
		}
		c.EscrowStatus = EscrowFinished
		e.emit(NewEscrowFinishedEvent(c))
	}
	if err := e.state.AddDeveloperStats(b.DeveloperAddress, TotalAmount(contribs)); err != nil {
		return nil, err
	}
	e.emit(NewClaimedEvent(b))
	return &ClaimResult{Outcomes: succeeded}, nil
}

// Cancel aborts an open bounty. Escrows normally do not exist before
// acceptance, but any that do (from a partially failed accept) are cancelled
// back to their contributors before the bounty transitions. Contributions
// stay recorded for audit.
func (e *Engine) Cancel(ctx context.Context, bountyID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	release := e.locks.Acquire(bountyID)
	defer release()

	b, err := e.loadBounty(bountyID)
	if err != nil {
		return err
	}
	if b.Status != StatusOpen {
		return &InvalidStateError{BountyID: bountyID, Status: b.Status, Op: "cancel"}
	}
	contribs, err := e.ledger.ListByBounty(bountyID)
	if err != nil {
		return err
	}
	created := make([]*Contribution, 0)
	for _, c := range contribs {
		if c.EscrowStatus == EscrowCreated && c.Escrow != nil {
			created = append(created, c)
		}
	}
	if len(created) > 0 {
		if e.gateway == nil {
			return errNilGateway
		}
		outcomes := e.fanout(ctx, created, func(ctx context.Context, c *Contribution) (*EscrowHandle, error) {
			err := e.withRetry(ctx, func(ctx context.Context) error {
				return e.gateway.CancelEscrow(ctx, EscrowCancelRequest{
					Owner:  c.ContributorAddress,
					Handle: *c.Escrow,
				})
			})
			if err != nil {
				return nil, err
			}
			return c.Escrow, nil
		})
		succeeded, failed := splitOutcomes(outcomes)
		for _, out := range succeeded {
			if err := e.ledger.UpdateEscrow(out.ContributionID, out.Handle, EscrowCancelled, b.ConditionHex); err != nil {
				return err
			}
		}
		if len(failed) > 0 {
			return &PartialFailureError{Op: "cancel", BountyID: bountyID, Succeeded: succeeded, Failed: failed}
		}
		for _, c := range created {
			c.EscrowStatus = EscrowCancelled
			e.emit(NewEscrowCancelledEvent(c))
		}
	}

	prior := b.Status
	b.Status = StatusCancelled
	b.UpdatedAt = e.now()
	if err := e.state.TransitionBounty(b, prior); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(b))
	return nil
}

// DeveloperSecret returns the stored developer secret iff the bounty is
// currently accepted and the requester's ledger address matches the accepted
// developer. The secret's lifetime ends with the accepted phase: before
// acceptance and after settlement it is unavailable, and everyone but the
// developer, the funder included, gets ErrForbidden.
func (e *Engine) DeveloperSecret(bountyID uint64, requesterAddress string) (string, error) {
	if e == nil || e.state == nil {
		return "", errNilState
	}
	b, err := e.loadBounty(bountyID)
	if err != nil {
		return "", err
	}
	if b.Status != StatusAccepted {
		return "", ErrSecretUnavailable
	}
	if b.DeveloperAddress == "" || b.DeveloperSecret == "" {
		return "", ErrSecretUnavailable
	}
	if strings.TrimSpace(requesterAddress) != b.DeveloperAddress {
		return "", ErrForbidden
	}
	return b.DeveloperSecret, nil
}

// Bounty returns a copy of the stored bounty. The developer secret and
// preimage are stripped; they are only reachable through DeveloperSecret.
func (e *Engine) Bounty(bountyID uint64) (*Bounty, error) {
	b, err := e.loadBounty(bountyID)
	if err != nil {
		return nil, err
	}
	clone := b.Clone()
	clone.DeveloperSecret = ""
	clone.PreimageHex = ""
	return clone, nil
}

// Contributions returns the bounty's contributions in creation order.
func (e *Engine) Contributions(bountyID uint64) ([]*Contribution, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.loadBounty(bountyID); err != nil {
		return nil, err
	}
	contribs, err := e.ledger.ListByBounty(bountyID)
	if err != nil {
		return nil, err
	}
	out := make([]*Contribution, 0, len(contribs))
	for _, c := range contribs {
		out = append(out, c.Clone())
	}
	return out, nil
}

// fanout dispatches fn per contribution with bounded concurrency and collects
// outcomes in ascending creation order. Execution order is unspecified;
// reporting order is deterministic.
func (e *Engine) fanout(ctx context.Context, contribs []*Contribution, fn func(context.Context, *Contribution) (*EscrowHandle, error)) []ContributionOutcome {
	outcomes := make([]ContributionOutcome, len(contribs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.fanoutWidth)
	for i, c := range contribs {
		i, c := i, c
		g.Go(func() error {
			handle, err := fn(ctx, c)
			outcomes[i] = ContributionOutcome{ContributionID: c.ID, Handle: handle, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func splitOutcomes(outcomes []ContributionOutcome) (succeeded, failed []ContributionOutcome) {
	for _, out := range outcomes {
		if out.Err != nil {
			failed = append(failed, out)
		} else {
			succeeded = append(succeeded, out)
		}
	}
	return succeeded, failed
}

// withRetry runs fn up to the engine's attempt bound, backing off between
// transient ledger failures. Permanent errors surface immediately.
func (e *Engine) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var last error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err
		if !IsRetryable(err) {
			return err
		}
		if attempt == e.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.backoffFn(attempt)):
		}
	}
	return last
}

func backoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	d := retryBackoffBase * time.Duration(1<<uint(attempt-1))
	if d > retryBackoffCeiling {
		return retryBackoffCeiling
	}
	return d
}

package rpc

import (
	"encoding/json"
	"net/http"
	"time"

	"bountyx/native/bounty"
)

type createParams struct {
	Funder        string `json:"funder"`
	FunderAddress string `json:"funderAddress"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	IssueURL      string `json:"issueUrl"`
	Amount        string `json:"amount"`
	TimeLimitSecs int64  `json:"timeLimitSeconds,omitempty"`
}

type boostParams struct {
	BountyID           uint64 `json:"bountyId"`
	Contributor        string `json:"contributor"`
	ContributorAddress string `json:"contributorAddress"`
	Amount             string `json:"amount"`
}

type acceptParams struct {
	BountyID         uint64 `json:"bountyId"`
	DeveloperAddress string `json:"developerAddress"`
}

type claimParams struct {
	BountyID        uint64 `json:"bountyId"`
	MergeRequestURL string `json:"mergeRequestUrl"`
}

type bountyIDParams struct {
	BountyID uint64 `json:"bountyId"`
}

type developerSecretParams struct {
	BountyID         uint64 `json:"bountyId"`
	RequesterAddress string `json:"requesterAddress"`
}

type userStatsParams struct {
	Address string `json:"address"`
}

type userStatsResult struct {
	Address        string `json:"address"`
	BountiesFunded int64  `json:"bountiesFunded"`
	BountiesEarned int64  `json:"bountiesEarned"`
	TotalFunded    string `json:"totalFunded"`
	TotalEarned    string `json:"totalEarned"`
}

type bountyResult struct {
	ID               uint64 `json:"id"`
	Funder           string `json:"funder"`
	FunderAddress    string `json:"funderAddress"`
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	IssueURL         string `json:"issueUrl"`
	Amount           string `json:"amount"`
	DeveloperAddress string `json:"developerAddress,omitempty"`
	Status           string `json:"status"`
	CreatedAt        int64  `json:"createdAt"`
	UpdatedAt        int64  `json:"updatedAt"`
}

type contributionResult struct {
	ID                 string `json:"id"`
	BountyID           uint64 `json:"bountyId"`
	Contributor        string `json:"contributor,omitempty"`
	ContributorAddress string `json:"contributorAddress"`
	Amount             string `json:"amount"`
	EscrowTxHash       string `json:"escrowTxHash,omitempty"`
	EscrowSequence     uint32 `json:"escrowSequence,omitempty"`
	EscrowStatus       string `json:"escrowStatus"`
	CreatedAt          int64  `json:"createdAt"`
}

func bountyToResult(b *bounty.Bounty) bountyResult {
	amount := "0"
	if b.Amount != nil {
		amount = b.Amount.String()
	}
	return bountyResult{
		ID:               b.ID,
		Funder:           b.Funder,
		FunderAddress:    b.FunderAddress,
		Title:            b.Title,
		Description:      b.Description,
		IssueURL:         b.IssueURL,
		Amount:           amount,
		DeveloperAddress: b.DeveloperAddress,
		Status:           b.Status.String(),
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

func contributionToResult(c *bounty.Contribution) contributionResult {
	amount := "0"
	if c.Amount != nil {
		amount = c.Amount.String()
	}
	out := contributionResult{
		ID:                 c.ID.String(),
		BountyID:           c.BountyID,
		Contributor:        c.Contributor,
		ContributorAddress: c.ContributorAddress,
		Amount:             amount,
		EscrowStatus:       c.EscrowStatus.String(),
		CreatedAt:          c.CreatedAt,
	}
	if c.Escrow != nil {
		out.EscrowTxHash = c.Escrow.TxHash
		out.EscrowSequence = c.Escrow.OfferSequence
	}
	return out
}

func (s *Server) handleCreate(r *http.Request, raw json.RawMessage) (interface{}, *rpcError) {
	var params createParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseDrops(params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	b, err := s.engine.Create(r.Context(), bounty.CreateParams{
		Funder:        params.Funder,
		FunderAddress: params.FunderAddress,
		Title:         params.Title,
		Description:   params.Description,
		IssueURL:      params.IssueURL,
		Amount:        amount,
		TimeLimit:     time.Duration(params.TimeLimitSecs) * time.Second,
	})
	if err != nil {
		return nil, errorToRPC(err)
	}
	return bountyToResult(b), nil
}

func (s *Server) handleBoost(r *http.Request, raw json.RawMessage) (interface{}, *rpcError) {
	var params boostParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseDrops(params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	contrib, err := s.engine.Boost(r.Context(), params.BountyID, bounty.BoostParams{
		Contributor:        params.Contributor,
		ContributorAddress: params.ContributorAddress,
		Amount:             amount,
	})
	if err != nil {
		return nil, errorToRPC(err)
	}
	return contributionToResult(contrib), nil
}

func (s *Server) handleAccept(r *http.Request, raw json.RawMessage) (interface{}, *rpcError) {
	var params acceptParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	result, err := s.engine.Accept(r.Context(), params.BountyID, params.DeveloperAddress)
	if err != nil {
		return nil, errorToRPC(err)
	}
	escrows := make([]map[string]interface{}, 0, len(result.Outcomes))
	for _, out := range result.Outcomes {
		entry := map[string]interface{}{"contributionId": out.ContributionID.String()}
		if out.Handle != nil {
			entry["txHash"] = out.Handle.TxHash
			entry["offerSequence"] = out.Handle.OfferSequence
		}
		escrows = append(escrows, entry)
	}
	return map[string]interface{}{
		"bountyId":        params.BountyID,
		"developerSecret": result.DeveloperSecret,
		"cancelAfter":     result.CancelAfter.Unix(),
		"escrows":         escrows,
	}, nil
}

func (s *Server) handleClaim(r *http.Request, raw json.RawMessage) (interface{}, *rpcError) {
	var params claimParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	result, err := s.engine.Claim(r.Context(), params.BountyID, params.MergeRequestURL)
	if err != nil {
		return nil, errorToRPC(err)
	}
	finished := make([]string, 0, len(result.Outcomes))
	for _, out := range result.Outcomes {
		finished = append(finished, out.ContributionID.String())
	}
	return map[string]interface{}{
		"bountyId": params.BountyID,
		"status":   bounty.StatusClaimed.String(),
		"finished": finished,
	}, nil
}

func (s *Server) handleCancel(r *http.Request, raw json.RawMessage) (interface{}, *rpcError) {
	var params bountyIDParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Cancel(r.Context(), params.BountyID); err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]interface{}{
		"bountyId": params.BountyID,
		"status":   bounty.StatusCancelled.String(),
	}, nil
}

func (s *Server) handleGet(raw json.RawMessage) (interface{}, *rpcError) {
	var params bountyIDParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	b, err := s.engine.Bounty(params.BountyID)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return bountyToResult(b), nil
}

func (s *Server) handleContributions(raw json.RawMessage) (interface{}, *rpcError) {
	var params bountyIDParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	contribs, err := s.engine.Contributions(params.BountyID)
	if err != nil {
		return nil, errorToRPC(err)
	}
	out := make([]contributionResult, 0, len(contribs))
	for _, c := range contribs {
		out = append(out, contributionToResult(c))
	}
	return out, nil
}

func (s *Server) handleDeveloperSecret(raw json.RawMessage) (interface{}, *rpcError) {
	var params developerSecretParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	secret, err := s.engine.DeveloperSecret(params.BountyID, params.RequesterAddress)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]string{"developerSecret": secret}, nil
}

func (s *Server) handleUserStats(raw json.RawMessage) (interface{}, *rpcError) {
	if s.stats == nil {
		return nil, &rpcError{Code: codeMethodNotFound, Message: "user stats not available"}
	}
	var params userStatsParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	stats, err := s.stats.Stats(params.Address)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return userStatsResult{
		Address:        stats.Address,
		BountiesFunded: stats.BountiesFunded,
		BountiesEarned: stats.BountiesEarned,
		TotalFunded:    stats.TotalFunded,
		TotalEarned:    stats.TotalEarned,
	}, nil
}

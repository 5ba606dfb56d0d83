package bounty

import (
	"fmt"
	"regexp"
	"strings"
)

// MergeRequest is the accessible content of a submitted merge request. The
// fetch itself lives behind the MergeRequestFetcher interface; verification is
// a pure function over this blob.
type MergeRequest struct {
	URL    string
	Title  string
	Body   string
	Merged bool
}

var issueURLPattern = regexp.MustCompile(`github\.com/[^/]+/[^/]+/issues/(\d+)`)

var mergeRequestURLPattern = regexp.MustCompile(`github\.com/[^/]+/[^/]+/pull/\d+`)

// ExtractIssueNumber pulls the issue number out of a GitHub issue URL.
func ExtractIssueNumber(issueURL string) (string, error) {
	match := issueURLPattern.FindStringSubmatch(strings.TrimSpace(issueURL))
	if match == nil {
		return "", &ValidationError{Field: "issue_url", Reason: "not a GitHub issue URL"}
	}
	return match[1], nil
}

// ValidMergeRequestURL reports whether the submitted URL looks like a GitHub
// pull request link.
func ValidMergeRequestURL(raw string) bool {
	return mergeRequestURLPattern.MatchString(strings.TrimSpace(raw))
}

// issueReferencePatterns returns the recognised ways a merge request may cite
// the bounty's source issue.
func issueReferencePatterns(issueNumber string) []*regexp.Regexp {
	quoted := regexp.QuoteMeta(issueNumber)
	raw := []string{
		`bounty-x` + quoted + `\b`,
		`#` + quoted + `\b`,
		`closes #` + quoted + `\b`,
		`fixes #` + quoted + `\b`,
		`resolves #` + quoted + `\b`,
		`close #` + quoted + `\b`,
		`fix #` + quoted + `\b`,
		`resolve #` + quoted + `\b`,
	}
	patterns := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		patterns = append(patterns, regexp.MustCompile(`(?i)`+p))
	}
	return patterns
}

// VerifyClaim checks a fetched merge request against the bounty's issue number
// and the developer secret issued at accept time. Both the issue reference and
// the secret must be present, and the merge request must actually be merged.
// Failures carry a reason code so callers can tell the developer what to fix.
func VerifyClaim(mr *MergeRequest, issueNumber, developerSecret string) error {
	if mr == nil {
		return fmt.Errorf("bounty engine: nil merge request")
	}
	referenced := false
	for _, pattern := range issueReferencePatterns(issueNumber) {
		if pattern.MatchString(mr.Title) || pattern.MatchString(mr.Body) {
			referenced = true
			break
		}
	}
	if !referenced {
		return &ClaimVerificationError{Reason: ClaimReasonIssueNotReferenced}
	}
	if !mr.Merged {
		return &ClaimVerificationError{Reason: ClaimReasonNotMerged}
	}
	if developerSecret == "" ||
		(!strings.Contains(mr.Title, developerSecret) && !strings.Contains(mr.Body, developerSecret)) {
		return &ClaimVerificationError{Reason: ClaimReasonSecretNotFound}
	}
	return nil
}

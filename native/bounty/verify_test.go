package bounty

import (
	"errors"
	"testing"
)

func TestExtractIssueNumber(t *testing.T) {
	num, err := ExtractIssueNumber("https://github.com/acme/widget/issues/42")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if num != "42" {
		t.Fatalf("expected 42, got %s", num)
	}

	var verr *ValidationError
	for _, bad := range []string{
		"https://github.com/acme/widget/pull/42",
		"https://gitlab.com/acme/widget/issues/42",
		"not a url",
		"",
	} {
		if _, err := ExtractIssueNumber(bad); !errors.As(err, &verr) {
			t.Fatalf("expected validation error for %q, got %v", bad, err)
		}
	}
}

func TestValidMergeRequestURL(t *testing.T) {
	if !ValidMergeRequestURL("https://github.com/acme/widget/pull/7") {
		t.Fatalf("pull URL must validate")
	}
	if ValidMergeRequestURL("https://github.com/acme/widget/issues/7") {
		t.Fatalf("issue URL must not validate as a pull URL")
	}
	if ValidMergeRequestURL("") {
		t.Fatalf("empty URL must not validate")
	}
}

func TestVerifyClaimReferenceForms(t *testing.T) {
	const secret = "s3cr3ts3cr3ts3cr3ts3cr3ts3cr3t00"
	refs := []string{
		"bounty-x42",
		"see #42",
		"closes #42",
		"Fixes #42",
		"RESOLVES #42",
		"close #42",
		"fix #42",
		"resolve #42",
	}
	for _, ref := range refs {
		mr := &MergeRequest{Title: ref, Body: secret, Merged: true}
		if err := VerifyClaim(mr, "42", secret); err != nil {
			t.Fatalf("reference form %q rejected: %v", ref, err)
		}
	}

	// #421 must not satisfy a claim against issue 42.
	mr := &MergeRequest{Title: "closes #421", Body: secret, Merged: true}
	var cerr *ClaimVerificationError
	if err := VerifyClaim(mr, "42", secret); !errors.As(err, &cerr) || cerr.Reason != ClaimReasonIssueNotReferenced {
		t.Fatalf("expected issue_not_referenced for prefix collision, got %v", err)
	}
}

func TestVerifyClaimReasonOrder(t *testing.T) {
	const secret = "s3cr3ts3cr3ts3cr3ts3cr3ts3cr3t00"
	var cerr *ClaimVerificationError

	// No reference at all: reported before the merge check.
	mr := &MergeRequest{Title: "unrelated", Body: "nothing", Merged: false}
	if err := VerifyClaim(mr, "42", secret); !errors.As(err, &cerr) || cerr.Reason != ClaimReasonIssueNotReferenced {
		t.Fatalf("expected issue_not_referenced, got %v", err)
	}

	// Referenced but not merged.
	mr = &MergeRequest{Title: "fixes #42", Body: secret, Merged: false}
	if err := VerifyClaim(mr, "42", secret); !errors.As(err, &cerr) || cerr.Reason != ClaimReasonNotMerged {
		t.Fatalf("expected not_merged, got %v", err)
	}

	// Referenced and merged but the secret is absent.
	mr = &MergeRequest{Title: "fixes #42", Body: "no key here", Merged: true}
	if err := VerifyClaim(mr, "42", secret); !errors.As(err, &cerr) || cerr.Reason != ClaimReasonSecretNotFound {
		t.Fatalf("expected secret_not_found, got %v", err)
	}
}

func TestVerifyClaimSecretInTitle(t *testing.T) {
	const secret = "s3cr3ts3cr3ts3cr3ts3cr3ts3cr3t00"
	mr := &MergeRequest{Title: "fixes #42 " + secret, Body: "", Merged: true}
	if err := VerifyClaim(mr, "42", secret); err != nil {
		t.Fatalf("secret in title must satisfy the check: %v", err)
	}
}

package review

import (
	"errors"
	"testing"
)

func TestValidateRejectsWhitespaceOnlyFields(t *testing.T) {
	cases := []struct {
		name   string
		target Target
		want   string
	}{
		{"branch", BaseBranchTarget("   "), "branch must not be empty"},
		{"sha", CommitTarget("\t", ""), "sha must not be empty"},
		{"instructions", CustomTarget("\n\n"), "instructions must not be empty"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.target.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if err.Error() != c.want {
				t.Fatalf("expected message %q, got %q", c.want, err.Error())
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if ve.Code() != CodeInvalidRequest {
				t.Fatalf("expected code %d, got %d", CodeInvalidRequest, ve.Code())
			}
		})
	}
}

func TestValidateAcceptsNonEmptyFields(t *testing.T) {
	targets := []Target{
		CommitTarget("1234567deadbeef", "Tidy UI colors"),
		BaseBranchTarget("main"),
		CustomTarget("detached review"),
	}
	for _, target := range targets {
		if err := target.Validate(); err != nil {
			t.Fatalf("%+v: unexpected validation error: %v", target, err)
		}
	}
}

func TestDescribeRendersCommitWithAndWithoutTitle(t *testing.T) {
	withTitle := CommitTarget("1234567deadbeef", "Tidy UI colors")
	if got := withTitle.Describe(); got != "commit 1234567: Tidy UI colors" {
		t.Fatalf("unexpected description: %q", got)
	}

	noTitle := CommitTarget("abcdef0123456", "")
	if got := noTitle.Describe(); got != "commit abcdef0" {
		t.Fatalf("unexpected description: %q", got)
	}
}

func TestDescribeRendersBranchAndCustom(t *testing.T) {
	if got := BaseBranchTarget("main").Describe(); got != "branch main" {
		t.Fatalf("unexpected description: %q", got)
	}
	if got := CustomTarget("detached review").Describe(); got != "detached review" {
		t.Fatalf("unexpected description: %q", got)
	}
}

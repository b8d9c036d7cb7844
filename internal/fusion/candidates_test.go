package fusion

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/ocr-fusion/internal/common"
)

func TestNewCandidateSet(t *testing.T) {
	set, err := NewCandidateSet(
		Candidate{Key: "tess_psm06", Text: "b"},
		Candidate{Key: "paddle", Text: "a"},
		Candidate{Key: "easy", Text: " "},
	)
	if err != nil {
		t.Fatalf("NewCandidateSet: %v", err)
	}
	if diff := cmp.Diff([]CandidateKey{"easy", "paddle", "tess_psm06"}, set.Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]CandidateKey{"paddle", "tess_psm06"}, set.Surviving().Keys()); diff != "" {
		t.Errorf("surviving keys (-want +got):\n%s", diff)
	}
}

func TestNewCandidateSetRejectsDuplicateKey(t *testing.T) {
	_, err := NewCandidateSet(
		Candidate{Key: "paddle", Text: "lago"},
		Candidate{Key: "paddle", Text: "lage"},
	)
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != common.CodeInvalidInput {
		t.Fatalf("err = %#v, want AppError with %s", err, common.CodeInvalidInput)
	}
}

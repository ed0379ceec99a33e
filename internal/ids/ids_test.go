package ids

import (
	"testing"

	"github.com/google/uuid"
)

func TestUUIDProviderIssuesVersion7(testContext *testing.T) {
	provider := NewUUIDProvider()
	first, err := provider.NewID()
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	second, err := provider.NewID()
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	parsed, err := uuid.Parse(first)
	if err != nil {
		testContext.Fatalf("invalid uuid %q: %v", first, err)
	}
	if parsed.Version() != 7 {
		testContext.Fatalf("expected version 7, got %d", parsed.Version())
	}
	if first >= second {
		testContext.Fatalf("expected increasing ids, got %q then %q", first, second)
	}
}

func TestSequenceFallsBackToUUID(testContext *testing.T) {
	sequence := NewSequence("a", "b")
	for _, want := range []string{"a", "b"} {
		got, err := sequence.NewID()
		if err != nil || got != want {
			testContext.Fatalf("expected %q, got %q (%v)", want, got, err)
		}
	}
	fallback, err := sequence.NewID()
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	if _, err := uuid.Parse(fallback); err != nil {
		testContext.Fatalf("expected uuid fallback, got %q", fallback)
	}
}

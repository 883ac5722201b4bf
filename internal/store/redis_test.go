package store

import "testing"

func TestQueueMemberRoundTrip(t *testing.T) {
	t.Parallel()

	// Ids above 2^53 do not survive a float64 score; the member encoding
	// must round-trip them exactly.
	const id = uint64(1) << 60
	raw := queueMember(id, []byte("payload:with:colons"))

	got, value, ok := parseQueueMember(raw)
	if !ok {
		t.Fatalf("member did not parse: %q", raw)
	}
	if got != id {
		t.Fatalf("id mangled: got %d, want %d", got, id)
	}
	if string(value) != "payload:with:colons" {
		t.Fatalf("unexpected value: %q", value)
	}
}

func TestParseQueueMemberRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "no-separator", "abc:value", "-1:value"} {
		if _, _, ok := parseQueueMember(raw); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

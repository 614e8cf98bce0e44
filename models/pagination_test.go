package models

import "testing"

func TestCompositeCursor_RoundTrip(t *testing.T) {
	cursor := EncodeCompositeCursor("2026-08-01 10:30:00", 42)

	value, id := DecodeCompositeCursor(&cursor)
	if value != "2026-08-01 10:30:00" {
		t.Fatalf("expected cursor value round-trip, got %q", value)
	}
	if id != 42 {
		t.Fatalf("expected id 42, got %d", id)
	}
}

func TestDecodeCompositeCursor_Malformed(t *testing.T) {
	cases := []*string{nil}
	for _, s := range []string{"", "not-base64!!", EncodeCursor("no-separator"), EncodeCursor("a|b|c"), EncodeCursor("value|not-a-number")} {
		s := s
		cases = append(cases, &s)
	}
	for i, c := range cases {
		value, id := DecodeCompositeCursor(c)
		if value != "" || id != 0 {
			t.Fatalf("case %d: expected empty decode, got %q %d", i, value, id)
		}
	}
}

package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"0612345678", "+31612345678"},
		{"+31 6 12345678", "+31612345678"},
		{"06 12 34 56 78", "+31612345678"},
		{"+14155552671", "+14155552671"},
		{"not a number", "not a number"},
		{"  ", ""},
	}

	for _, tc := range cases {
		if got := NormalizeE164(tc.input); got != tc.want {
			t.Errorf("NormalizeE164(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestIsUsable(t *testing.T) {
	usable := []string{"+31612345678", "0612345678"}
	for _, input := range usable {
		if !IsUsable(input) {
			t.Errorf("IsUsable(%q) = false, want true", input)
		}
	}

	unusable := []string{"", "   ", "-", "n/a", "N/A", "none", "unknown", "0", "null"}
	for _, input := range unusable {
		if IsUsable(input) {
			t.Errorf("IsUsable(%q) = true, want false", input)
		}
	}
}

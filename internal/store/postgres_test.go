package store

import "testing"

func TestEscapeLikeNeutralizesMetacharacters(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ada", "ada"},
		{"", ""},
		{"%", `\%`},
		{"_", `\_`},
		{`a\b`, `a\\b`},
		{"50%_off", `50\%\_off`},
	}
	for _, tc := range cases {
		if got := escapeLike(tc.in); got != tc.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

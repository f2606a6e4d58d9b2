package redis

import "testing"

func TestGameIDFromTimerKey(t *testing.T) {
	cases := []struct {
		key  string
		id   string
		want bool
	}{
		{"game:abc:timer", "abc", true},
		{"game:6f1c-22:timer", "6f1c-22", true},
		{"game:abc:lease", "", false},
		{"session:abc:timer", "", false},
		{"game::timer", "", false},
	}
	for _, tc := range cases {
		id, ok := GameIDFromTimerKey(tc.key)
		if id != tc.id || ok != tc.want {
			t.Errorf("GameIDFromTimerKey(%q) = %q, %v; want %q, %v", tc.key, id, ok, tc.id, tc.want)
		}
	}
}

package scrape

import "testing"

func TestParseDurationLabel(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"4:05", 245, true},
		{"0:59", 59, true},
		{"1:02:03", 3723, true},
		{"10:00:00", 36000, true},
		{" 12:34 ", 754, true},
		{"", 0, false},
		{"90", 0, false},
		{"1:2:3:4", 0, false},
		{"1:60", 0, false},
		{"-1:30", 0, false},
		{"live", 0, false},
	}

	for _, tc := range cases {
		got, ok := ParseDurationLabel(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseDurationLabel(%q) = (%d, %v); want (%d, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

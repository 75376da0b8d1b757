package date

import (
	"encoding/json"
	"testing"
	"time"
)

// TestTime assert that the time() is cannonical and gives comparable times.
func TestTime(t *testing.T) {
	d1 := New(2025, 7, 31)
	d2 := New(2025, 7, 31)

	if d1.time() != d2.time() {
		// Note that usually time.Time are not comparable (there is a pointer for the timezone) this
		// tests also checks that the property remain true
		t.Errorf("invalid time() function same day gives two different time")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected Date
		err      bool
	}{
		{"2025-01-15", New(2025, time.January, 15), false},
		{"2025-7-1", New(2025, time.July, 1), false},
		{"2024-02-30", Date{}, true},
		{"invalid-date", Date{}, true},
		{"", Date{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.err {
				t.Fatalf("Parse(%q) error = %v, want error %v", tt.input, err, tt.err)
			}
			if got != tt.expected {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	a, b := New(2024, time.January, 31), New(2024, time.February, 1)
	if !a.Before(b) || b.Before(a) || a.After(b) || !b.After(a) {
		t.Errorf("expected %v before %v", a, b)
	}
	if a.Compare(a) != 0 {
		t.Errorf("%v.Compare(itself) = %d, want 0", a, a.Compare(a))
	}
	if got := a.Add(1); got != b {
		t.Errorf("%v.Add(1) = %v, want %v", a, got, b)
	}
}

func TestDateJSON(t *testing.T) {
	in := New(2024, time.March, 1)
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(b) != `"2024-03-01"` {
		t.Errorf("Marshal() = %s, want %q", b, "2024-03-01")
	}
	var out Date
	if err := json.Unmarshal([]byte(`""`), &out); err != nil || !out.IsZero() {
		t.Errorf("Unmarshal(\"\") = %v, %v, want zero date", out, err)
	}
}

func TestRange(t *testing.T) {
	var r Range
	r = r.Extend(MustParse("2024-03-01"))
	if r.String() != "2024-03-01" {
		t.Errorf("single day range = %q, want %q", r.String(), "2024-03-01")
	}
	r = r.Extend(MustParse("2024-06-01")).Extend(MustParse("2024-01-15"))
	if r.String() != "2024-01-15..2024-06-01" {
		t.Errorf("range = %q, want %q", r.String(), "2024-01-15..2024-06-01")
	}
	if !r.Contains(MustParse("2024-03-01")) || r.Contains(MustParse("2024-06-02")) {
		t.Errorf("Contains() mismatch for %v", r)
	}
}

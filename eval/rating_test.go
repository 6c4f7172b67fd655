package eval

import "testing"

func TestRatingIsValid(t *testing.T) {
	for _, r := range AllRatings() {
		if !r.IsValid() {
			t.Errorf("expected %d to be valid", int(r))
		}
	}
	for _, r := range []Rating{0, 2, 4, 6, -1} {
		if r.IsValid() {
			t.Errorf("expected %d to be invalid", int(r))
		}
	}
}

func TestRatingString(t *testing.T) {
	tests := []struct {
		rating Rating
		want   string
	}{
		{RatingIncorrect, "incorrect"},
		{RatingPartiallyCorrect, "partially correct"},
		{RatingCorrect, "correct"},
		{Rating(2), "invalid(2)"},
	}
	for _, tt := range tests {
		if got := tt.rating.String(); got != tt.want {
			t.Errorf("Rating(%d).String() = %q, want %q", int(tt.rating), got, tt.want)
		}
	}
}

func TestRatingScanValue(t *testing.T) {
	var r Rating
	if err := r.Scan(int64(5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != RatingCorrect {
		t.Errorf("expected correct, got %v", r)
	}

	v, err := RatingPartiallyCorrect.Value()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != int64(3) {
		t.Errorf("expected int64(3), got %v (%T)", v, v)
	}

	if err := r.Scan(int64(2)); err == nil {
		t.Error("expected error scanning invalid rating")
	}
	if err := r.Scan("5"); err == nil {
		t.Error("expected error scanning non-integer value")
	}
}

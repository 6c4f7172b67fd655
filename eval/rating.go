package eval

import (
	"database/sql/driver"
	"fmt"
)

// Rating grades generated content against ground truth on a closed ordinal
// scale. Produced once per evaluation pair; immutable.
type Rating int

const (
	// RatingIncorrect indicates the generated content is incorrect.
	RatingIncorrect Rating = 1

	// RatingPartiallyCorrect indicates the content is partially correct but
	// may lack key context or nuance compared to the ground truth.
	RatingPartiallyCorrect Rating = 3

	// RatingCorrect indicates the content is correct and complete.
	RatingCorrect Rating = 5
)

// AllRatings returns all valid rating values.
func AllRatings() []Rating {
	return []Rating{RatingIncorrect, RatingPartiallyCorrect, RatingCorrect}
}

// IsValid returns true if the rating is one of the closed set {1, 3, 5}.
func (r Rating) IsValid() bool {
	switch r {
	case RatingIncorrect, RatingPartiallyCorrect, RatingCorrect:
		return true
	default:
		return false
	}
}

// String returns a human-readable label for the rating.
func (r Rating) String() string {
	switch r {
	case RatingIncorrect:
		return "incorrect"
	case RatingPartiallyCorrect:
		return "partially correct"
	case RatingCorrect:
		return "correct"
	default:
		return fmt.Sprintf("invalid(%d)", int(r))
	}
}

// Value implements driver.Valuer for database serialization.
func (r Rating) Value() (driver.Value, error) {
	return int64(r), nil
}

// Scan implements sql.Scanner for database deserialization.
func (r *Rating) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		rating := Rating(v)
		if !rating.IsValid() {
			return fmt.Errorf("eval: invalid rating %d", v)
		}
		*r = rating
		return nil
	default:
		return fmt.Errorf("eval: cannot scan type %T into Rating", src)
	}
}

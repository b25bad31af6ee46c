package walkforward

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidPeriod = errors.New("invalid period")

var periodPattern = regexp.MustCompile(`^(\d+)(y|mo|w|d)$`)

// Period is a calendar duration. Months and years follow the calendar, so "1mo" from
// Jan 31 lands on Mar 2 or 3 exactly as time.AddDate does.
type Period struct {
	Years  int `json:"years,omitempty"`
	Months int `json:"months,omitempty"`
	Days   int `json:"days,omitempty"`
}

func Years(n int) Period  { return Period{Years: n} }
func Months(n int) Period { return Period{Months: n} }
func Days(n int) Period   { return Period{Days: n} }

// ParsePeriod reads "<n><unit>" with unit y, mo, w or d, e.g. "36mo" or "5d".
func ParsePeriod(s string) (Period, error) {
	m := periodPattern.FindStringSubmatch(strings.TrimSpace(strings.ToLower(s)))
	if m == nil {
		return Period{}, fmt.Errorf("%w: %q (want e.g. 36mo, 2y, 1w, 5d)", ErrInvalidPeriod, s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q: %v", ErrInvalidPeriod, s, err)
	}
	switch m[2] {
	case "y":
		return Years(n), nil
	case "mo":
		return Months(n), nil
	case "w":
		return Days(7 * n), nil
	default:
		return Days(n), nil
	}
}

func (p Period) AddTo(t time.Time) time.Time {
	return t.AddDate(p.Years, p.Months, p.Days)
}

func (p Period) Times(k int) Period {
	return Period{Years: p.Years * k, Months: p.Months * k, Days: p.Days * k}
}

func (p Period) IsZero() bool { return p == Period{} }

func (p Period) negative() bool { return p.Years < 0 || p.Months < 0 || p.Days < 0 }

func (p Period) String() string {
	if p.IsZero() {
		return "0d"
	}
	var b strings.Builder
	if p.Years != 0 {
		fmt.Fprintf(&b, "%dy", p.Years)
	}
	if p.Months != 0 {
		fmt.Fprintf(&b, "%dmo", p.Months)
	}
	if p.Days != 0 {
		fmt.Fprintf(&b, "%dd", p.Days)
	}
	return b.String()
}

func (p *Period) UnmarshalText(text []byte) error {
	parsed, err := ParsePeriod(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Operator is the comparison a Filter applies. The set is closed.
type Operator string

const (
	OpEquals         Operator = "="
	OpNotEquals      Operator = "!"
	OpContains       Operator = "~"
	OpNotContains    Operator = "!~"
	OpStartsWith     Operator = "**"
	OpEndsWith       Operator = "*~"
	OpIsNull         Operator = "!*"
	OpIsNotNull      Operator = "*"
	OpGreaterThan    Operator = ">"
	OpLessThan       Operator = "<"
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
	OpBetween        Operator = "<>d"
	OpRelative       Operator = "rel"
	OpOpen           Operator = "o"
	OpClosed         Operator = "c"
)

// operatorNames maps long-form names to operators.
var operatorNames = map[string]Operator{
	"equals":         OpEquals,
	"notEquals":      OpNotEquals,
	"contains":       OpContains,
	"notContains":    OpNotContains,
	"startsWith":     OpStartsWith,
	"endsWith":       OpEndsWith,
	"isNull":         OpIsNull,
	"none":           OpIsNull,
	"isNotNull":      OpIsNotNull,
	"any":            OpIsNotNull,
	"greaterThan":    OpGreaterThan,
	"lessThan":       OpLessThan,
	"greaterOrEqual": OpGreaterOrEqual,
	"lessOrEqual":    OpLessOrEqual,
	"between":        OpBetween,
	"relative":       OpRelative,
	"open":           OpOpen,
	"closed":         OpClosed,
}

var operatorsByType = map[FieldType][]Operator{
	TypeString:    {OpEquals, OpNotEquals, OpContains, OpNotContains, OpStartsWith, OpEndsWith, OpIsNull, OpIsNotNull},
	TypeText:      {OpContains, OpNotContains, OpStartsWith, OpEndsWith, OpIsNull, OpIsNotNull},
	TypeInteger:   {OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual, OpBetween, OpIsNull, OpIsNotNull},
	TypeFloat:     {OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual, OpBetween, OpIsNull, OpIsNotNull},
	TypeDate:      {OpEquals, OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual, OpBetween, OpRelative, OpIsNull, OpIsNotNull},
	TypeDateTime:  {OpEquals, OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual, OpBetween, OpRelative, OpIsNull, OpIsNotNull},
	TypeBoolean:   {OpEquals},
	TypeUser:      {OpEquals, OpNotEquals, OpIsNull, OpIsNotNull},
	TypeReference: {OpEquals, OpNotEquals, OpIsNull, OpIsNotNull},
	TypeStatus:    {OpEquals, OpNotEquals, OpOpen, OpClosed},
	TypeList:      {OpEquals, OpNotEquals, OpIsNull, OpIsNotNull},
}

// Arity describes how many values an operator takes.
type Arity struct {
	Min, Max int // Max < 0 means unbounded
}

// Arity returns the value count op requires.
func (op Operator) Arity() Arity {
	switch op {
	case OpEquals, OpNotEquals:
		return Arity{Min: 1, Max: -1}
	case OpIsNull, OpIsNotNull, OpOpen, OpClosed:
		return Arity{}
	case OpBetween:
		return Arity{Min: 2, Max: 2}
	default:
		return Arity{Min: 1, Max: 1}
	}
}

func (a Arity) accepts(n int) bool {
	return n >= a.Min && (a.Max < 0 || n <= a.Max)
}

func (a Arity) String() string {
	switch {
	case a.Max < 0:
		return fmt.Sprintf("at least %d value(s)", a.Min)
	case a.Min == a.Max && a.Min == 0:
		return "no values"
	case a.Min == a.Max:
		return fmt.Sprintf("exactly %d value(s)", a.Min)
	}
	return fmt.Sprintf("between %d and %d values", a.Min, a.Max)
}

// IsValid reports whether op belongs to the operator set.
func (op Operator) IsValid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains, OpStartsWith, OpEndsWith, OpIsNull, OpIsNotNull,
		OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual, OpBetween, OpRelative, OpOpen, OpClosed:
		return true
	}
	return false
}

// matchesText reports whether op takes free search text rather than typed
// values.
func (op Operator) matchesText() bool {
	switch op {
	case OpContains, OpNotContains, OpStartsWith, OpEndsWith:
		return true
	}
	return false
}

// ParseOperator resolves a wire operator. Besides the canonical symbols and
// long names it accepts the shorthand relative-date operators ("t", "w",
// "t+N", "<t+N", ">t+N", "t-N", "<t-N", ">t-N"), which are rewritten into
// OpRelative with the equivalent token. A shorthand whose day count is given
// as a separate value returns an empty token; NormalizeOperator handles that.
func ParseOperator(s string) (Operator, string, error) {
	s = strings.TrimSpace(s)
	if op := Operator(s); op.IsValid() {
		return op, "", nil
	}
	if op, ok := operatorNames[s]; ok {
		return op, "", nil
	}
	switch s {
	case "t":
		return OpRelative, "today", nil
	case "w":
		return OpRelative, "thisWeek", nil
	}
	for _, sh := range relativeShorthands {
		if rest, ok := strings.CutPrefix(s, sh.prefix); ok {
			if rest == "" {
				return OpRelative, sh.kind + ":", nil
			}
			n, err := strconv.Atoi(rest)
			if err != nil || n < 0 {
				return "", "", fmt.Errorf("invalid day count in operator %q", s)
			}
			return OpRelative, sh.kind + ":" + strconv.Itoa(n), nil
		}
	}
	return "", "", fmt.Errorf("unknown operator %q", s)
}

var relativeShorthands = []struct{ prefix, kind string }{
	{"<t+", "inLessThanDays"},
	{">t+", "inMoreThanDays"},
	{"<t-", "lessThanDaysAgo"},
	{">t-", "moreThanDaysAgo"},
	{"t+", "inDays"},
	{"t-", "daysAgo"},
}

// NormalizeOperator turns a wire operator and its values into canonical
// form. Shorthand relative operators become OpRelative with a single token.
func NormalizeOperator(op string, values []string) (Operator, []string, error) {
	parsed, token, err := ParseOperator(op)
	if err != nil {
		return "", nil, err
	}
	if token == "" {
		return parsed, values, nil
	}
	if strings.HasSuffix(token, ":") {
		if len(values) != 1 {
			return "", nil, fmt.Errorf("operator %q requires a day count", op)
		}
		token += strings.TrimSpace(values[0])
	} else if len(values) > 0 && !(len(values) == 1 && values[0] == "") {
		return "", nil, fmt.Errorf("operator %q takes no values", op)
	}
	return OpRelative, []string{token}, nil
}

// RelativeKind names the shape of a relative-date token.
type RelativeKind int

const (
	RelToday RelativeKind = iota
	RelThisWeek
	RelInLessThanDays
	RelInMoreThanDays
	RelLessThanDaysAgo
	RelMoreThanDaysAgo
	RelInDays
	RelDaysAgo
)

var relativeKindNames = map[string]RelativeKind{
	"today":           RelToday,
	"thisWeek":        RelThisWeek,
	"inLessThanDays":  RelInLessThanDays,
	"inMoreThanDays":  RelInMoreThanDays,
	"lessThanDaysAgo": RelLessThanDaysAgo,
	"moreThanDaysAgo": RelMoreThanDaysAgo,
	"inDays":          RelInDays,
	"daysAgo":         RelDaysAgo,
}

// RelativeToken is a date bound expressed relative to the current day.
// It is kept symbolic until execution.
type RelativeToken struct {
	Kind RelativeKind
	Days int
}

// ParseRelativeToken parses "today", "thisWeek", or "<kind>:<days>".
func ParseRelativeToken(s string) (RelativeToken, error) {
	name, days, hasDays := strings.Cut(s, ":")
	kind, ok := relativeKindNames[name]
	if !ok {
		return RelativeToken{}, fmt.Errorf("unknown relative date %q", s)
	}
	if kind == RelToday || kind == RelThisWeek {
		if hasDays {
			return RelativeToken{}, fmt.Errorf("relative date %q takes no day count", name)
		}
		return RelativeToken{Kind: kind}, nil
	}
	n, err := strconv.Atoi(days)
	if !hasDays || err != nil || n < 0 {
		return RelativeToken{}, fmt.Errorf("relative date %q requires a non-negative day count", name)
	}
	if n > 36500 {
		return RelativeToken{}, fmt.Errorf("relative date day count %d is out of range", n)
	}
	return RelativeToken{Kind: kind, Days: n}, nil
}

// Range resolves the token into a half-open interval [from, to) of days
// in loc, anchored at now. A nil bound is open.
func (t RelativeToken) Range(now time.Time, loc *time.Location) (from, to *time.Time) {
	n := now.In(loc)
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	day := func(offset int) *time.Time {
		d := today.AddDate(0, 0, offset)
		return &d
	}
	switch t.Kind {
	case RelToday:
		return day(0), day(1)
	case RelThisWeek:
		// Weeks start on Monday.
		back := (int(today.Weekday()) + 6) % 7
		return day(-back), day(7 - back)
	case RelInLessThanDays:
		return day(0), day(t.Days + 1)
	case RelInMoreThanDays:
		return day(t.Days + 1), nil
	case RelLessThanDaysAgo:
		return day(-t.Days), day(1)
	case RelMoreThanDaysAgo:
		return nil, day(-t.Days)
	case RelInDays:
		return day(t.Days), day(t.Days + 1)
	case RelDaysAgo:
		return day(-t.Days), day(-t.Days + 1)
	}
	return nil, nil
}

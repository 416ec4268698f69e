package query

import (
	"slices"
	"testing"
	"time"
)

func TestNormalizeOperator(t *testing.T) {
	tests := []struct {
		op         string
		values     []string
		wantOp     Operator
		wantValues []string
		wantErr    bool
	}{
		{"=", []string{"1", "2"}, OpEquals, []string{"1", "2"}, false},
		{"equals", []string{"1"}, OpEquals, []string{"1"}, false},
		{"notContains", []string{"x"}, OpNotContains, []string{"x"}, false},
		{"!*", nil, OpIsNull, nil, false},
		{"t", nil, OpRelative, []string{"today"}, false},
		{"w", []string{""}, OpRelative, []string{"thisWeek"}, false},
		{"<t+", []string{"3"}, OpRelative, []string{"inLessThanDays:3"}, false},
		{">t+5", nil, OpRelative, []string{"inMoreThanDays:5"}, false},
		{"<t-", []string{"7"}, OpRelative, []string{"lessThanDaysAgo:7"}, false},
		{">t-2", nil, OpRelative, []string{"moreThanDaysAgo:2"}, false},
		{"**", []string{"log"}, OpStartsWith, []string{"log"}, false},
		{"endsWith", []string{"log"}, OpEndsWith, []string{"log"}, false},
		{">", []string{"5"}, OpGreaterThan, []string{"5"}, false},
		{"lessThan", []string{"5"}, OpLessThan, []string{"5"}, false},
		{"relative", []string{"today"}, OpRelative, []string{"today"}, false},
		{"<t+", nil, "", nil, true},
		{"t", []string{"3"}, "", nil, true},
		{"like", []string{"x"}, "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			op, values, err := NormalizeOperator(tt.op, tt.values)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeOperator(%q) error = %v, wantErr %v", tt.op, err, tt.wantErr)
			}
			if op != tt.wantOp || !slices.Equal(values, tt.wantValues) {
				t.Errorf("NormalizeOperator(%q) = %q %v, want %q %v", tt.op, op, values, tt.wantOp, tt.wantValues)
			}
		})
	}
}

func TestArity(t *testing.T) {
	tests := []struct {
		op   Operator
		n    int
		want bool
	}{
		{OpEquals, 0, false},
		{OpEquals, 3, true},
		{OpIsNull, 0, true},
		{OpIsNull, 1, false},
		{OpBetween, 1, false},
		{OpBetween, 2, true},
		{OpBetween, 3, false},
		{OpRelative, 1, true},
		{OpContains, 2, false},
	}
	for _, tt := range tests {
		if got := tt.op.Arity().accepts(tt.n); got != tt.want {
			t.Errorf("%q with %d values: accepts = %v, want %v", tt.op, tt.n, got, tt.want)
		}
	}
}

func TestParseRelativeToken(t *testing.T) {
	tests := []struct {
		in      string
		want    RelativeToken
		wantErr bool
	}{
		{"today", RelativeToken{Kind: RelToday}, false},
		{"thisWeek", RelativeToken{Kind: RelThisWeek}, false},
		{"inLessThanDays:3", RelativeToken{Kind: RelInLessThanDays, Days: 3}, false},
		{"inMoreThanDays:0", RelativeToken{Kind: RelInMoreThanDays}, false},
		{"today:1", RelativeToken{}, true},
		{"inLessThanDays", RelativeToken{}, true},
		{"inLessThanDays:-1", RelativeToken{}, true},
		{"yesterday", RelativeToken{}, true},
	}
	for _, tt := range tests {
		got, err := ParseRelativeToken(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRelativeToken(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRelativeToken(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestRelativeTokenRange(t *testing.T) {
	// Wednesday 2024-05-15 22:30 UTC.
	now := time.Date(2024, 5, 15, 22, 30, 0, 0, time.UTC)
	day := func(y int, m time.Month, d int, loc *time.Location) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}

	tests := []struct {
		name     string
		tok      RelativeToken
		from, to *time.Time
	}{
		{"today", RelativeToken{Kind: RelToday}, ptr(day(2024, 5, 15, time.UTC)), ptr(day(2024, 5, 16, time.UTC))},
		{"this week starts monday", RelativeToken{Kind: RelThisWeek}, ptr(day(2024, 5, 13, time.UTC)), ptr(day(2024, 5, 20, time.UTC))},
		{"in less than 3 days", RelativeToken{Kind: RelInLessThanDays, Days: 3}, ptr(day(2024, 5, 15, time.UTC)), ptr(day(2024, 5, 19, time.UTC))},
		{"in more than 3 days", RelativeToken{Kind: RelInMoreThanDays, Days: 3}, ptr(day(2024, 5, 19, time.UTC)), nil},
		{"less than 2 days ago", RelativeToken{Kind: RelLessThanDaysAgo, Days: 2}, ptr(day(2024, 5, 13, time.UTC)), ptr(day(2024, 5, 16, time.UTC))},
		{"more than 2 days ago", RelativeToken{Kind: RelMoreThanDaysAgo, Days: 2}, nil, ptr(day(2024, 5, 13, time.UTC))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := tt.tok.Range(now, time.UTC)
			if !sameTime(from, tt.from) || !sameTime(to, tt.to) {
				t.Errorf("Range() = [%v, %v), want [%v, %v)", from, to, tt.from, tt.to)
			}
		})
	}

	t.Run("location shifts the current day", func(t *testing.T) {
		tokyo := time.FixedZone("JST", 9*3600)
		from, to := RelativeToken{Kind: RelToday}.Range(now, tokyo)
		if !sameTime(from, ptr(day(2024, 5, 16, tokyo))) || !sameTime(to, ptr(day(2024, 5, 17, tokyo))) {
			t.Errorf("Range() in JST = [%v, %v)", from, to)
		}
	})

	t.Run("sunday belongs to the week that started monday", func(t *testing.T) {
		sunday := time.Date(2024, 5, 19, 12, 0, 0, 0, time.UTC)
		from, _ := RelativeToken{Kind: RelThisWeek}.Range(sunday, time.UTC)
		if !sameTime(from, ptr(day(2024, 5, 13, time.UTC))) {
			t.Errorf("week start = %v, want 2024-05-13", from)
		}
	})
}

func ptr[T any](v T) *T { return &v }

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

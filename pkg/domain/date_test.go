package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2026, Month: time.March, Day: 10}, d)
	assert.Equal(t, "2026-03-10", d.String())

	_, err = ParseDate("10/03/2026")
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, ClockMinutes(570), c)
	assert.Equal(t, "09:30", c.String())

	_, err = ParseClock("9:30pm")
	assert.Error(t, err)
}

func TestDateComparisonIsExact(t *testing.T) {
	a, err := ParseDate("2026-03-10")
	require.NoError(t, err)
	b := DateOf(time.Date(2026, time.March, 10, 23, 59, 0, 0, time.FixedZone("X", 5*3600)))
	assert.Equal(t, a, b)
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name           string
		s1, e1, s2, e2 ClockMinutes
		want           bool
	}{
		{"identical intervals", 600, 660, 600, 660, true},
		{"partial overlap", 600, 660, 630, 690, true},
		{"containment", 600, 720, 630, 660, true},
		{"back to back", 600, 660, 660, 720, false},
		{"disjoint", 600, 660, 700, 760, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(tc.s1, tc.e1, tc.s2, tc.e2))
			assert.Equal(t, tc.want, Overlaps(tc.s2, tc.e2, tc.s1, tc.e1))
		})
	}
}

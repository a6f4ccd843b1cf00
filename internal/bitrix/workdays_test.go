package bitrix

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddWorkdays(t *testing.T) {
	// 2024-03-01 is a Friday
	friday := time.Date(2024, 3, 1, 15, 4, 5, 0, time.Local)

	testCases := []struct {
		name     string
		start    time.Time
		n        int
		expected time.Time
	}{
		{
			name:     "friday skips the weekend",
			start:    friday,
			n:        3,
			expected: time.Date(2024, 3, 6, 15, 4, 5, 0, time.Local),
		},
		{
			name:     "monday lands on thursday",
			start:    time.Date(2024, 3, 4, 9, 0, 0, 0, time.Local),
			n:        3,
			expected: time.Date(2024, 3, 7, 9, 0, 0, 0, time.Local),
		},
		{
			name:     "saturday counts from monday",
			start:    time.Date(2024, 3, 2, 9, 0, 0, 0, time.Local),
			n:        1,
			expected: time.Date(2024, 3, 4, 9, 0, 0, 0, time.Local),
		},
		{
			name:     "zero days",
			start:    friday,
			n:        0,
			expected: friday,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := AddWorkdays(tc.start, tc.n)
			assert.True(t, tc.expected.Equal(got), "expected %s, got %s", tc.expected, got)
		})
	}

	assert.Equal(t, time.Wednesday, AddWorkdays(friday, 3).Weekday())
}

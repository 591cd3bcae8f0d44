package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsSeasonalAnomaly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		points []dated
		want   bool
	}{
		{
			name: "summer spike against prior summers",
			points: []dated{
				{2023, time.June, 100}, {2023, time.July, 102}, {2023, time.August, 98},
				{2024, time.January, 50}, {2024, time.February, 52}, {2024, time.July, 200},
			},
			want: true,
		},
		{
			name: "value in line with neighbours",
			points: []dated{
				{2023, time.June, 100}, {2023, time.July, 102}, {2023, time.August, 98},
				{2024, time.January, 50}, {2024, time.February, 52}, {2024, time.July, 101},
			},
			want: false,
		},
		{
			name: "fewer than six points",
			points: []dated{
				{2023, time.June, 100}, {2023, time.July, 102}, {2023, time.August, 98},
				{2024, time.July, 500},
			},
			want: false,
		},
		{
			name: "no neighbouring samples",
			points: []dated{
				{2023, time.March, 100}, {2023, time.April, 100}, {2023, time.September, 98},
				{2023, time.October, 50}, {2024, time.January, 52}, {2024, time.July, 400},
			},
			want: false,
		},
		{
			name: "zero spread among neighbours",
			points: []dated{
				{2023, time.June, 100}, {2023, time.July, 100}, {2023, time.August, 100},
				{2024, time.January, 50}, {2024, time.February, 52}, {2024, time.July, 300},
			},
			want: false,
		},
		{
			// January is eleven months from December and is not a neighbour.
			name: "december does not match january",
			points: []dated{
				{2023, time.January, 100}, {2023, time.June, 50}, {2023, time.July, 55},
				{2024, time.January, 102}, {2024, time.June, 52}, {2024, time.December, 300},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsSeasonalAnomaly(datedSeries(tt.points...)))
		})
	}
}

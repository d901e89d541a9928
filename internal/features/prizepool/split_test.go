package prizepool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(n int) time.Time {
	return time.Date(2026, time.March, n, 0, 0, 0, 0, time.UTC)
}

func TestSplitPercentagesSumTo100(t *testing.T) {
	var sum int64
	for _, p := range SplitPercentages {
		sum += p
	}
	assert.Equal(t, int64(100), sum)
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		n      int
		want   []int64
	}{
		{"500 на четверых", 50000, 4, []int64{20000, 9000, 6000, 4000}},
		{"один победитель получает 40%", 10000, 1, []int64{4000}},
		{"больше десяти мест обрезается", 100000, 15, []int64{40000, 18000, 12000, 8000, 6000, 5000, 4000, 3000, 2000, 2000}},
		{"округление вниз", 99, 2, []int64{39, 17}},
		{"нулевой фонд", 0, 3, nil},
		{"нет победителей", 50000, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.amount, tt.n))
		})
	}
}

func TestSplit_FullTableSpendsWholePool(t *testing.T) {
	var total int64
	for _, v := range Split(50000, MaxWinners) {
		total += v
	}
	assert.Equal(t, int64(50000), total)
}

func TestOverlaps(t *testing.T) {
	existing := &Pool{StartDate: day(1), EndDate: day(7), Status: StatusActive}

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"начало внутри", day(5), day(10), true},
		{"конец внутри", day(1).AddDate(0, 0, -3), day(3), true},
		{"накрывает целиком", day(1).AddDate(0, 0, -1), day(9), true},
		{"совпадает", day(1), day(7), true},
		{"внутри существующего", day(2), day(4), true},
		{"после", day(8), day(14), false},
		{"стык конца и начала", day(7), day(10), false},
		{"стык начала и конца", day(1).AddDate(0, 0, -5), day(1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.start, tt.end, existing))
		})
	}
}

func TestFindOverlap_IgnoresClosedPools(t *testing.T) {
	pools := []*Pool{
		{StartDate: day(1), EndDate: day(7), Status: StatusPaidOut},
		{StartDate: day(1), EndDate: day(7), Status: StatusFailed},
	}
	assert.Nil(t, FindOverlap(day(5), day(10), pools))

	pending := &Pool{StartDate: day(3), EndDate: day(6), Status: StatusPending}
	pools = append(pools, pending)
	assert.Same(t, pending, FindOverlap(day(5), day(10), pools))
}

func TestPool_DaysLeft(t *testing.T) {
	p := &Pool{EndDate: day(10)}
	assert.Equal(t, 3, p.DaysLeft(day(7).Add(15*time.Hour)))
	assert.Equal(t, 0, p.DaysLeft(day(12)))
}

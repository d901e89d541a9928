package prizepool

// MaxWinners: сколько мест рейтинга получают выплату.
const MaxWinners = 10

// SplitPercentages: доля фонда по месту, в процентах. Сумма равна 100.
var SplitPercentages = [MaxWinners]int64{40, 18, 12, 8, 6, 5, 4, 3, 2, 2}

// Split делит фонд между первыми n местами. Доля места i :
// amount × SplitPercentages[i] / 100, в центах с округлением вниз.
// Остаток от деления и доли незанятых мест остаются на счёте.
func Split(amountCents int64, n int) []int64 {
	if amountCents <= 0 || n <= 0 {
		return nil
	}
	n = min(n, MaxWinners)
	out := make([]int64, n)
	for i := range n {
		out[i] = amountCents * SplitPercentages[i] / 100
	}
	return out
}

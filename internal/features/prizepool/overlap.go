package prizepool

import "time"

// Overlaps проверяет пересечение периода [start, end] нового фонда с существующим.
// Пересечением считается:
//   - начало нового внутри [existing.start, existing.end)
//   - конец нового внутри (existing.start, existing.end]
//   - новый фонд целиком накрывает существующий
//
// Фонды, стыкующиеся концом к началу, не пересекаются.
func Overlaps(start, end time.Time, existing *Pool) bool {
	es, ee := existing.StartDate, existing.EndDate

	startInside := !start.Before(es) && start.Before(ee)
	endInside := end.After(es) && !end.After(ee)
	contains := !start.After(es) && !end.Before(ee)

	return startInside || endInside || contains
}

// FindOverlap возвращает первый открытый фонд, пересекающийся с периодом.
func FindOverlap(start, end time.Time, pools []*Pool) *Pool {
	for _, p := range pools {
		if !p.Status.Open() {
			continue
		}
		if Overlaps(start, end, p) {
			return p
		}
	}
	return nil
}

// Package points: levels.go переводит сумму очков в уровень 1–10
// и прогресс до следующего уровня.
package points

import "math"

// Level описывает уровень: порог очков и отображаемые данные.
type Level struct {
	Level     int     `json:"level"`
	Threshold float64 `json:"threshold"`
	Title     string  `json:"title"`
	Icon      string  `json:"icon"`
}

// MaxLevel: последний уровень таблицы.
const MaxLevel = 10

// DefaultLevels: пороги по возрастанию. Индекс = уровень - 1.
var DefaultLevels = []Level{
	{Level: 1, Threshold: 0, Title: "Newcomer", Icon: "🌱"},
	{Level: 2, Threshold: 5, Title: "Member", Icon: "🙂"},
	{Level: 3, Threshold: 20, Title: "Regular", Icon: "💬"},
	{Level: 4, Threshold: 65, Title: "Contributor", Icon: "✍️"},
	{Level: 5, Threshold: 155, Title: "Active", Icon: "⚡"},
	{Level: 6, Threshold: 515, Title: "Enthusiast", Icon: "🔥"},
	{Level: 7, Threshold: 2015, Title: "Expert", Icon: "🎯"},
	{Level: 8, Threshold: 8015, Title: "Master", Icon: "🏅"},
	{Level: 9, Threshold: 33015, Title: "Legend", Icon: "🏆"},
	{Level: 10, Threshold: 100000, Title: "Icon", Icon: "👑"},
}

// LevelInfo: текущий уровень и прогресс до следующего.
type LevelInfo struct {
	Points          float64 `json:"points"`
	Current         Level   `json:"current"`
	Next            *Level  `json:"next,omitempty"`
	PointsRemaining float64 `json:"pointsRemaining"`
	Progress        float64 `json:"progress"`
	IsMaxLevel      bool    `json:"isMaxLevel"`
}

// Table: таблица уровней. Названия можно переопределить для сообщества
// через WithTitles, пороги остаются общими.
type Table struct {
	levels []Level
}

// NewTable создаёт таблицу с порогами по умолчанию.
func NewTable() *Table {
	levels := make([]Level, len(DefaultLevels))
	copy(levels, DefaultLevels)
	return &Table{levels: levels}
}

// WithTitles возвращает копию таблицы с заменёнными названиями уровней.
// Ключ: номер уровня. Пустые названия и неизвестные уровни игнорируются.
func (t *Table) WithTitles(titles map[int]string) *Table {
	levels := make([]Level, len(t.levels))
	copy(levels, t.levels)
	for i := range levels {
		if title, ok := titles[levels[i].Level]; ok && title != "" {
			levels[i].Title = title
		}
	}
	return &Table{levels: levels}
}

// Levels возвращает копию таблицы.
func (t *Table) Levels() []Level {
	out := make([]Level, len(t.levels))
	copy(out, t.levels)
	return out
}

// LevelForPoints возвращает максимальный уровень, порог которого ≤ points.
func (t *Table) LevelForPoints(p float64) int {
	return t.levelIndex(p) + 1
}

// NextLevelInfo возвращает уровень, следующий уровень, сколько очков осталось
// и процент прогресса внутри текущего интервала. На максимальном уровне
// прогресс = 100 и IsMaxLevel = true.
func (t *Table) NextLevelInfo(p float64) LevelInfo {
	if p < 0 || math.IsNaN(p) {
		p = 0
	}
	idx := t.levelIndex(p)
	info := LevelInfo{Points: p, Current: t.levels[idx]}

	if idx == len(t.levels)-1 {
		info.IsMaxLevel = true
		info.Progress = 100
		return info
	}

	next := t.levels[idx+1]
	band := next.Threshold - info.Current.Threshold
	info.Next = &next
	info.PointsRemaining = roundTo(next.Threshold-p, 1)
	info.Progress = roundTo((p-info.Current.Threshold)/band*100, 1)
	return info
}

func (t *Table) levelIndex(p float64) int {
	idx := 0
	for i, l := range t.levels {
		if p >= l.Threshold {
			idx = i
		}
	}
	return idx
}

// LevelForPoints: уровень по таблице по умолчанию.
func LevelForPoints(p float64) int {
	return defaultTable.LevelForPoints(p)
}

// NextLevelInfo: прогресс по таблице по умолчанию.
func NextLevelInfo(p float64) LevelInfo {
	return defaultTable.NextLevelInfo(p)
}

var defaultTable = NewTable()

func roundTo(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}

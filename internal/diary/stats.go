package diary

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/domain"
)

// topKeywordCount caps the keyword histogram.
const topKeywordCount = 10

// CalculateConsecutiveDays returns the length of the run of consecutive
// calendar days with entries that ends today, or yesterday when today has
// no entry yet. Dates use domain.DateLayout.
func CalculateConsecutiveDays(dates []string, today time.Time) int {
	have := make(map[string]bool, len(dates))
	for _, d := range dates {
		have[d] = true
	}

	start := today
	if !have[today.Format(domain.DateLayout)] {
		start = today.AddDate(0, 0, -1)
	}

	streak := 0
	for have[start.AddDate(0, 0, -streak).Format(domain.DateLayout)] {
		streak++
	}
	return streak
}

// MoodStat is one row of the mood histogram.
type MoodStat struct {
	Mood       domain.Mood `json:"mood"`
	Label      string      `json:"label"`
	Count      int         `json:"count"`
	Percentage float64     `json:"percentage"`
}

// KeywordStat is one row of the keyword histogram.
type KeywordStat struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// EmotionStats aggregates moods and keywords across entries.
type EmotionStats struct {
	Total    int           `json:"total"`
	Moods    []MoodStat    `json:"moods"`
	Keywords []KeywordStat `json:"keywords"`
}

// GenerateEmotionStats builds the mood and keyword histograms. Rows are
// sorted by count descending; ties keep first-encountered order.
func GenerateEmotionStats(entries []domain.DiaryEntry) EmotionStats {
	stats := EmotionStats{Total: len(entries), Moods: []MoodStat{}, Keywords: []KeywordStat{}}
	if len(entries) == 0 {
		return stats
	}

	moodIndex := map[domain.Mood]int{}
	kwIndex := map[string]int{}
	for _, e := range entries {
		if i, ok := moodIndex[e.Mood]; ok {
			stats.Moods[i].Count++
		} else {
			moodIndex[e.Mood] = len(stats.Moods)
			stats.Moods = append(stats.Moods, MoodStat{Mood: e.Mood, Label: e.Mood.Label(), Count: 1})
		}
		for _, k := range e.Keywords {
			if i, ok := kwIndex[k]; ok {
				stats.Keywords[i].Count++
			} else {
				kwIndex[k] = len(stats.Keywords)
				stats.Keywords = append(stats.Keywords, KeywordStat{Keyword: k, Count: 1})
			}
		}
	}

	for i := range stats.Moods {
		pct := float64(stats.Moods[i].Count) / float64(stats.Total) * 100
		stats.Moods[i].Percentage = math.Round(pct*10) / 10
	}

	sort.SliceStable(stats.Moods, func(i, j int) bool { return stats.Moods[i].Count > stats.Moods[j].Count })
	sort.SliceStable(stats.Keywords, func(i, j int) bool { return stats.Keywords[i].Count > stats.Keywords[j].Count })
	if len(stats.Keywords) > topKeywordCount {
		stats.Keywords = stats.Keywords[:topKeywordCount]
	}
	return stats
}

// Search returns entries whose summary or keywords contain keyword,
// case-insensitively, in their original order.
func Search(entries []domain.DiaryEntry, keyword string) []domain.DiaryEntry {
	results := []domain.DiaryEntry{}
	needle := strings.ToLower(strings.TrimSpace(keyword))
	if needle == "" {
		return results
	}
	for _, e := range entries {
		haystack := strings.ToLower(e.Summary) + "\x00" + strings.ToLower(strings.Join(e.Keywords, " "))
		if strings.Contains(haystack, needle) {
			results = append(results, e)
		}
	}
	return results
}

// CalendarDay groups the entries written on one date.
type CalendarDay struct {
	Date    string              `json:"date"`
	Entries []domain.DiaryEntry `json:"entries"`
}

// CalendarMonth lists the days of a month that have entries.
type CalendarMonth struct {
	Month string        `json:"month"`
	Days  []CalendarDay `json:"days"`
}

// monthLayout is the YYYY-MM month identifier.
const monthLayout = "2006-01"

// BuildCalendar groups entries of month (YYYY-MM) by day, ascending.
func BuildCalendar(entries []domain.DiaryEntry, month string) (CalendarMonth, error) {
	m, err := time.Parse(monthLayout, month)
	if err != nil {
		return CalendarMonth{}, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	prefix := m.Format(monthLayout) + "-"

	cal := CalendarMonth{Month: m.Format(monthLayout), Days: []CalendarDay{}}
	index := map[string]int{}
	for _, e := range entries {
		if !strings.HasPrefix(e.Date, prefix) {
			continue
		}
		if i, ok := index[e.Date]; ok {
			cal.Days[i].Entries = append(cal.Days[i].Entries, e)
			continue
		}
		index[e.Date] = len(cal.Days)
		cal.Days = append(cal.Days, CalendarDay{Date: e.Date, Entries: []domain.DiaryEntry{e}})
	}
	sort.SliceStable(cal.Days, func(i, j int) bool { return cal.Days[i].Date < cal.Days[j].Date })
	return cal, nil
}

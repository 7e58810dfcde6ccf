package diary

import (
	"fmt"
	"strings"
	"time"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/domain"
)

// NothingToExport is returned by Export when both collections are empty.
const NothingToExport = "내보낼 일기가 없어요."

const (
	exportTimestampLayout = "2006년 01월 02일 15시 04분"
	exportDateLayout      = "2006년 01월 02일"
)

// ExportFilename is the suggested download name for a backup made at now.
func ExportFilename(now time.Time) string {
	return "maumtalk_backup_" + now.Format("20060102") + ".txt"
}

// Export renders active then trashed entries as a plain-text backup.
func Export(entries []domain.DiaryEntry, trashed []domain.TrashedEntry, now time.Time) string {
	if len(entries) == 0 && len(trashed) == 0 {
		return NothingToExport
	}

	var b strings.Builder
	rule := strings.Repeat("=", 50)
	sep := strings.Repeat("-", 30)

	b.WriteString("=== 💜 마음톡 감정일기 백업 ===\n\n")

	if len(entries) > 0 {
		fmt.Fprintf(&b, "📚 나의 일기들 (%d개)\n%s\n\n", len(entries), rule)
		for _, e := range entries {
			fmt.Fprintf(&b, "📅 날짜: %s %s\n", e.Date, e.Time)
			writeBody(&b, e)
			if len(e.ActionItems) > 0 {
				b.WriteString("💡 AI 친구의 조언:\n")
				for _, item := range e.ActionItems {
					fmt.Fprintf(&b, "   • %s\n", item)
				}
			}
			fmt.Fprintf(&b, "\n%s\n\n", sep)
		}
	}

	if len(trashed) > 0 {
		fmt.Fprintf(&b, "\n🗑️ 임시 보관함 (%d개)\n%s\n\n", len(trashed), rule)
		for _, t := range trashed {
			fmt.Fprintf(&b, "📅 원본 날짜: %s %s\n", t.Date, t.Time)
			fmt.Fprintf(&b, "🗑️ 보관함에 들어온 날: %s\n", t.DeletedAt.Format(exportTimestampLayout))
			fmt.Fprintf(&b, "⏰ 자동삭제 예정일: %s\n", formatExpiry(t.AutoExpireAt))
			writeBody(&b, t.DiaryEntry)
			fmt.Fprintf(&b, "\n%s\n\n", sep)
		}
	}

	fmt.Fprintf(&b, "\n📊 총계: 일기 %d개, 임시보관 %d개\n", len(entries), len(trashed))
	fmt.Fprintf(&b, "백업 날짜: %s", now.Format(exportTimestampLayout))
	return b.String()
}

func writeBody(b *strings.Builder, e domain.DiaryEntry) {
	fmt.Fprintf(b, "😊 기분: %s\n", e.Mood.Label())
	fmt.Fprintf(b, "📝 오늘 있었던 일: %s\n", e.Summary)
	if len(e.Keywords) > 0 {
		fmt.Fprintf(b, "🏷️ 감정 키워드: %s\n", strings.Join(e.Keywords, ", "))
	}
}

func formatExpiry(date string) string {
	d, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format(exportDateLayout)
}

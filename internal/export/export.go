// Package export renders a user's reservations into a plain-text file that
// the bot sends back as a document.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/clock"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/model"
)

// Write lays the reservations out chronologically, entries without a
// resolved schedule time after the dated ones, and writes the file under
// dir with a timestamped name. It returns the path of the written file.
func Write(dir string, ownerID int64, items []model.Reservation, norm *clock.Normalizer, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	sorted := make([]model.Reservation, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.OccursAt != nil && b.OccursAt != nil:
			return a.OccursAt.Before(*b.OccursAt)
		case a.OccursAt != nil:
			return true
		case b.OccursAt != nil:
			return false
		default:
			return a.LegacyDate < b.LegacyDate
		}
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Мои брони (на %s)\n\n", norm.FormatLocal(now))
	for i, r := range sorted {
		when := norm.FormatLegacyDate(r.LegacyDate)
		if r.OccursAt != nil {
			when = norm.FormatLocal(*r.OccursAt)
		}
		fmt.Fprintf(&sb, "%d. «%s» — %s — %s\n", i+1, r.Title, r.Venue, when)
		if r.URL != nil && *r.URL != "" {
			fmt.Fprintf(&sb, "   %s\n", *r.URL)
		}
	}
	fmt.Fprintf(&sb, "\nВсего: %d\n", len(sorted))

	name := fmt.Sprintf("reservations_%d_%s.txt", ownerID, now.In(time.UTC).Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return path, nil
}

// WriteOne writes a single reservation as its own file, for sharing one
// booking without the rest of the list.
func WriteOne(dir string, r *model.Reservation, norm *clock.Normalizer) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	when := norm.FormatLegacyDate(r.LegacyDate)
	if r.OccursAt != nil {
		when = norm.FormatLocal(*r.OccursAt)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "«%s»\nПлощадка: %s\nДата: %s\n", r.Title, r.Venue, when)
	if r.URL != nil && *r.URL != "" {
		fmt.Fprintf(&sb, "Ссылка: %s\n", *r.URL)
	}

	name := fmt.Sprintf("reservation_%d_%d.txt", r.OwnerID, r.ID)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return path, nil
}

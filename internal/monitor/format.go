package monitor

import (
	"strconv"
	"strings"
	"time"

	"github.com/lutzky/sensormon/internal/state"
)

// Item describes how one field appears in a rendered line.
type Item struct {
	Label string
	Field string

	// Delta optionally names a field shown next to the value as "(Δ x)".
	Delta string

	// StaleAfter marks the value STALE once it is older than this. Zero
	// disables the check.
	StaleAfter time.Duration
}

// Render formats snap as a single line, e.g.
// "PAPI: 5 | Distance: 117 (Δ -3) [OK]".
func Render(snap state.Snapshot, items []Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, renderItem(snap, it))
	}
	return strings.Join(parts, " | ")
}

func renderItem(snap state.Snapshot, it Item) string {
	var b strings.Builder
	b.WriteString(it.Label)
	b.WriteString(": ")

	f, ok := snap.Get(it.Field)
	if ok {
		b.WriteString(formatValue(f.Value))
	} else {
		b.WriteString("waiting")
	}

	if it.Delta != "" {
		if d, ok := snap.Get(it.Delta); ok {
			b.WriteString(" (Δ ")
			b.WriteString(formatValue(d.Value))
			b.WriteString(")")
		}
	}

	if status := snap.Fields[it.Field].Status; status != "" {
		b.WriteString(" [")
		b.WriteString(status)
		b.WriteString("]")
	}

	if snap.Freshness(it.Field, it.StaleAfter) == state.Stale {
		b.WriteString(" STALE")
	}
	return b.String()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package ctl

import (
	"strconv"
	"strings"
	"time"

	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/service/controller"
)

// FormatSnapshot renders the state as one line of key=value pairs.
func FormatSnapshot(snap controller.Snapshot) string {
	var b strings.Builder

	b.WriteString("status=")
	b.WriteString(snap.Status.String())

	if snap.PendingDrop {
		b.WriteString(" pending_drop=true")
	}

	writeMeters(&b, "safe_radius_m", snap.SafeRadiusMeters)
	writeVerdict(&b, snap.Verdict)

	return b.String()
}

// FormatEvent renders one change event as a line.
func FormatEvent(e controller.Event) string {
	var b strings.Builder

	if !e.At.IsZero() {
		b.WriteString(e.At.UTC().Format(time.RFC3339))
		b.WriteByte(' ')
	}

	b.WriteString(e.Kind.String())
	b.WriteByte(' ')
	b.WriteString(e.Previous.String())
	b.WriteString("->")
	b.WriteString(e.Current.String())

	writeVerdict(&b, e.Verdict)

	return b.String()
}

func writeVerdict(b *strings.Builder, v *anchor.Verdict) {
	if v == nil {
		return
	}

	writeMeters(b, "distance_m", v.DistanceMeters)
	b.WriteString(" anchor=")
	b.WriteString(v.Anchor.Coordinate.String())
	b.WriteString(" session=")
	b.WriteString(v.Anchor.SessionID.String())

	if v.LastFix == nil {
		return
	}

	b.WriteString(" last_fix=")
	b.WriteString(v.LastFix.Coordinate.String())
	b.WriteString(" bearing_deg=")
	b.WriteString(strconv.FormatFloat(v.BearingDegrees, 'f', 0, 64))

	if v.LastFix.AccuracyKnown() {
		writeMeters(b, "accuracy_m", v.LastFix.HorizontalAccuracyMeters)
	}
}

func writeMeters(b *strings.Builder, key string, value float64) {
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(strconv.FormatFloat(value, 'f', 1, 64))
}

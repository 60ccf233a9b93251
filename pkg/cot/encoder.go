package cot

import (
	"fmt"
	"strings"
	"time"
)

// Fixed attributes of the self-report event emitted by the agent.
const (
	EventVersion  = "2.0"
	EventType     = "a-h-G-U-C"
	EventHow      = "m-g"
	CircularError = "5.0"
	LinearError   = "7.0"
	GroupRole     = "HQ"
	Platform      = "WebTAK"
	PlatformVer   = "2.0"
)

// timestampLayout renders UTC milliseconds with an explicit +00:00 offset.
const timestampLayout = "2006-01-02T15:04:05.000"

// Event holds everything needed to render a self-report event.
type Event struct {
	UID      string
	Callsign string
	Group    string
	Lat      float64
	Lon      float64
	HAE      float64
	Course   float64
	Speed    float64
	Battery  int
	Time     time.Time
}

// FormatTimestamp renders t as ISO-8601 in UTC with the trailing Z replaced by +00:00.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout) + "+00:00"
}

// Encode renders e as a CoT XML document. The output depends only on e.
func Encode(e Event) string {
	var b strings.Builder
	b.Grow(512)

	fmt.Fprintf(&b, `<event version="%s" uid="%s" type="%s" time="%s" how="%s">`+"\n",
		EventVersion, escape(e.UID), EventType, FormatTimestamp(e.Time), EventHow)
	fmt.Fprintf(&b, `  <point lat="%.7f" lon="%.7f" hae="%.1f" ce="%s" le="%s"/>`+"\n",
		e.Lat, e.Lon, e.HAE, CircularError, LinearError)
	b.WriteString("  <detail>\n")
	fmt.Fprintf(&b, `    <contact callsign="%s"/>`+"\n", escape(e.Callsign))
	fmt.Fprintf(&b, `    <__group name="%s" role="%s"/>`+"\n", escape(e.Group), GroupRole)
	fmt.Fprintf(&b, `    <status battery="%d"/>`+"\n", e.Battery)
	fmt.Fprintf(&b, `    <takv platform="%s" version="%s"/>`+"\n", Platform, PlatformVer)
	fmt.Fprintf(&b, `    <track course="%.1f" speed="%.1f"/>`+"\n", e.Course, e.Speed)
	b.WriteString("  </detail>\n")
	b.WriteString("</event>")

	return b.String()
}

var attrEscaper = strings.NewReplacer(
	`&`, "&amp;",
	`<`, "&lt;",
	`>`, "&gt;",
	`"`, "&quot;",
	`'`, "&apos;",
)

func escape(s string) string {
	return attrEscaper.Replace(s)
}

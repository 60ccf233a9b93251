// Package receiver keeps a table of remote tracks reported by the TAK server.
package receiver

import (
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/benmeehan/tak-agent/internal/metrics"
	"github.com/benmeehan/tak-agent/pkg/cot"
)

// DefaultLabelTemplates maps CoT types to track label templates. The
// "default" entry applies to types without their own template.
var DefaultLabelTemplates = map[string]string{
	"default":   "${callsign}",
	"a-h-G-U-C": "Person:${callsign}",
	"a-f-G-U-C": "UAV:${speed}km/h",
	"a-v-G-U-C": "Vehicle:${group}",
}

const unknownLabel = "unknown target"

var placeholder = regexp.MustCompile(`\$\{([^}]+)\}`)

// supportedVersion accepts CoT 2.x events.
var supportedVersion = mustConstraint("^2")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Track is the latest known state of a remote unit.
type Track struct {
	Event     cot.Message `json:"event"`
	Label     string      `json:"label"`
	FirstSeen time.Time   `json:"first_seen"`
	LastSeen  time.Time   `json:"last_seen"`
	Updates   int         `json:"updates"`
}

// Receiver parses inbound CoT and upserts tracks by UID. Safe for concurrent use.
type Receiver struct {
	selfUID   string
	templates map[string]string
	tracks    cmap.ConcurrentMap[string, Track]
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewReceiver creates a receiver that ignores echoes of selfUID. A nil
// or empty templates map uses DefaultLabelTemplates.
func NewReceiver(selfUID string, templates map[string]string, logger zerolog.Logger, m *metrics.Metrics) *Receiver {
	if len(templates) == 0 {
		templates = DefaultLabelTemplates
	}
	return &Receiver{
		selfUID:   selfUID,
		templates: templates,
		tracks:    cmap.New[Track](),
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// WithClock overrides the clock used for track timestamps.
func (r *Receiver) WithClock(now func() time.Time) *Receiver {
	r.now = now
	return r
}

// HandleMessage processes one inbound payload. Malformed messages are logged
// and dropped.
func (r *Receiver) HandleMessage(payload []byte) {
	msg, err := cot.Parse(payload)
	if err != nil {
		r.metrics.InboundEvent(metrics.InboundInvalid)
		r.logger.Warn().Err(err).Int("bytes", len(payload)).Msg("Dropping inbound CoT message")
		return
	}
	if msg.UID != "" && msg.UID == r.selfUID {
		r.metrics.InboundEvent(metrics.InboundSelf)
		return
	}
	r.checkVersion(msg)

	now := r.now()
	label := r.label(msg)
	r.tracks.Upsert(msg.UID, Track{}, func(exists bool, old Track, _ Track) Track {
		t := Track{Event: msg, Label: label, FirstSeen: now, LastSeen: now, Updates: 1}
		if exists {
			t.FirstSeen = old.FirstSeen
			t.Updates = old.Updates + 1
		}
		return t
	})

	r.metrics.InboundEvent(metrics.InboundAccepted)
	r.logger.Debug().
		Str("uid", msg.UID).
		Str("type", msg.Type).
		Float64("lat", msg.Lat).
		Float64("lon", msg.Lon).
		Msg("Track updated")
}

func (r *Receiver) checkVersion(msg cot.Message) {
	if msg.Version == "" {
		return
	}
	v, err := semver.NewVersion(msg.Version)
	if err != nil || !supportedVersion.Check(v) {
		r.logger.Warn().Str("uid", msg.UID).Str("version", msg.Version).Msg("Unexpected CoT event version")
	}
}

// label renders the template for the message type, substituting
// ${callsign}, ${group}, ${battery}, ${course} and ${speed}.
func (r *Receiver) label(msg cot.Message) string {
	tmpl, ok := r.templates[msg.Type]
	if !ok {
		tmpl, ok = r.templates["default"]
	}
	if !ok || tmpl == "" {
		if msg.Callsign != "" {
			return msg.Callsign
		}
		return unknownLabel
	}

	label := placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		switch placeholder.FindStringSubmatch(m)[1] {
		case "callsign":
			return msg.Callsign
		case "group":
			return msg.Group
		case "uid":
			return msg.UID
		case "battery":
			return strconv.FormatFloat(msg.Battery, 'f', -1, 64)
		case "course":
			return strconv.FormatFloat(msg.Course, 'f', -1, 64)
		case "speed":
			return strconv.FormatFloat(msg.Speed, 'f', -1, 64)
		}
		return ""
	})
	if label == "" {
		return unknownLabel
	}
	return label
}

// Get returns the track for uid.
func (r *Receiver) Get(uid string) (Track, bool) {
	return r.tracks.Get(uid)
}

// Remove deletes the track for uid and reports whether it existed.
func (r *Receiver) Remove(uid string) bool {
	_, ok := r.tracks.Pop(uid)
	return ok
}

// Clear deletes every track.
func (r *Receiver) Clear() {
	r.tracks.Clear()
}

func (r *Receiver) Len() int {
	return r.tracks.Count()
}

// Tracks returns all tracks sorted by UID.
func (r *Receiver) Tracks() []Track {
	items := r.tracks.Items()
	out := make([]Track, 0, len(items))
	for _, t := range items {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Event.UID < out[j].Event.UID })
	return out
}

// Prune removes tracks not updated within maxAge and returns how many were removed.
func (r *Receiver) Prune(maxAge time.Duration) int {
	cutoff := r.now().Add(-maxAge)
	removed := 0
	for uid, t := range r.tracks.Items() {
		if t.LastSeen.Before(cutoff) && r.tracks.RemoveCb(uid, func(_ string, cur Track, exists bool) bool {
			return exists && cur.LastSeen.Before(cutoff)
		}) {
			removed++
		}
	}
	return removed
}

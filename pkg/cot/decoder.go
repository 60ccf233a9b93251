package cot

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/benmeehan/tak-agent/pkg/geodesy"
)

// ErrInvalidCotFormat is returned when an inbound message is not a usable CoT event.
var ErrInvalidCotFormat = errors.New("invalid CoT format")

// Message is the decoded form of an inbound CoT event.
type Message struct {
	UID      string  `json:"uid"`
	Type     string  `json:"type"`
	Version  string  `json:"version,omitempty"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	HAE      float64 `json:"hae"`
	Callsign string  `json:"callsign,omitempty"`
	Group    string  `json:"group,omitempty"`
	Battery  float64 `json:"battery"`
	Course   float64 `json:"course"`
	Speed    float64 `json:"speed"`
}

type xmlEvent struct {
	XMLName xml.Name   `xml:"event"`
	Version string     `xml:"version,attr"`
	UID     string     `xml:"uid,attr"`
	Type    string     `xml:"type,attr"`
	Point   *xmlPoint  `xml:"point"`
	Detail  *xmlDetail `xml:"detail"`
}

type xmlPoint struct {
	Lat string `xml:"lat,attr"`
	Lon string `xml:"lon,attr"`
	HAE string `xml:"hae,attr"`
}

type xmlDetail struct {
	Contact *struct {
		Callsign string `xml:"callsign,attr"`
	} `xml:"contact"`
	Group *struct {
		Name string `xml:"name,attr"`
	} `xml:"__group"`
	Status *struct {
		Battery string `xml:"battery,attr"`
	} `xml:"status"`
	Track *struct {
		Course string `xml:"course,attr"`
		Speed  string `xml:"speed,attr"`
	} `xml:"track"`
}

// Parse decodes an inbound CoT event. Missing optional attributes default to
// zero values; a missing <event> or <point>, or a lat/lon that is not a
// decimal number within range, yields ErrInvalidCotFormat.
func Parse(data []byte) (Message, error) {
	var ev xmlEvent
	if err := xml.Unmarshal(data, &ev); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidCotFormat, err)
	}
	if ev.Point == nil {
		return Message{}, fmt.Errorf("%w: missing point", ErrInvalidCotFormat)
	}

	lat, err := parseDecimal(ev.Point.Lat)
	if err != nil {
		return Message{}, fmt.Errorf("%w: bad lat %q", ErrInvalidCotFormat, ev.Point.Lat)
	}
	lon, err := parseDecimal(ev.Point.Lon)
	if err != nil {
		return Message{}, fmt.Errorf("%w: bad lon %q", ErrInvalidCotFormat, ev.Point.Lon)
	}
	if !geodesy.ValidCoordinate(lat, lon) {
		return Message{}, fmt.Errorf("%w: coordinate (%q, %q) out of range", ErrInvalidCotFormat, ev.Point.Lat, ev.Point.Lon)
	}

	msg := Message{
		UID:     ev.UID,
		Type:    ev.Type,
		Version: ev.Version,
		Lat:     lat,
		Lon:     lon,
		HAE:     parseOrZero(ev.Point.HAE),
	}
	if msg.Type == "" {
		msg.Type = "unknown"
	}

	if d := ev.Detail; d != nil {
		if d.Contact != nil {
			msg.Callsign = d.Contact.Callsign
		}
		if d.Group != nil {
			msg.Group = d.Group.Name
		}
		if d.Status != nil {
			msg.Battery = parseOrZero(d.Status.Battery)
		}
		if d.Track != nil {
			msg.Course = parseOrZero(d.Track.Course)
			msg.Speed = parseOrZero(d.Track.Speed)
		}
	}

	return msg, nil
}

// parseDecimal accepts plain decimal numbers only. ParseFloat would also take
// NaN, Inf and hex floats.
func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "xXpPnNiI") {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(s, 64)
}

func parseOrZero(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

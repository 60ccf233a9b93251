package tak

import (
	"fmt"
	"math"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Group is the TAK team color reported in the __group element.
type Group string

const (
	GroupRed    Group = "Red"
	GroupBlue   Group = "Blue"
	GroupGreen  Group = "Green"
	GroupYellow Group = "Yellow"
)

// Valid reports whether g is one of the supported team colors.
func (g Group) Valid() bool {
	switch g {
	case GroupRed, GroupBlue, GroupGreen, GroupYellow:
		return true
	}
	return false
}

const (
	DefaultUpdateInterval     = 3 * time.Second
	DefaultDialTimeout        = 10 * time.Second
	DefaultMaxRetries         = 5
	DefaultBaseDelay          = time.Second
	DefaultBackoffFactor      = 2.0
	DefaultDuplicateThreshold = 1e-6
	DefaultHistorySize        = 100
)

// ResetOnOpen as ReconnectPolicy.StableAfter resets the retry counter on every open.
const ResetOnOpen time.Duration = -1

// ReconnectPolicy controls exponential backoff after a socket closes.
type ReconnectPolicy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	BackoffFactor float64
	// StableAfter is how long a connection must stay open before it resets
	// the retry counter. Zero means BaseDelay. ResetOnOpen resets the counter
	// as soon as a socket opens.
	StableAfter time.Duration
}

// Delay returns BaseDelay × BackoffFactor^retry.
func (p ReconnectPolicy) Delay(retry int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(retry)))
}

// ClientConfig is fixed for the lifetime of a Client.
type ClientConfig struct {
	Server             string
	UID                string
	Callsign           string
	Group              Group
	UpdateInterval     time.Duration
	DialTimeout        time.Duration
	Reconnect          ReconnectPolicy
	DuplicateThreshold float64
	HistorySize        int
}

// DefaultClientConfig returns a configuration with every optional field set.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Group:          GroupBlue,
		UpdateInterval: DefaultUpdateInterval,
		DialTimeout:    DefaultDialTimeout,
		Reconnect: ReconnectPolicy{
			MaxRetries:    DefaultMaxRetries,
			BaseDelay:     DefaultBaseDelay,
			BackoffFactor: DefaultBackoffFactor,
			StableAfter:   DefaultBaseDelay,
		},
		DuplicateThreshold: DefaultDuplicateThreshold,
		HistorySize:        DefaultHistorySize,
	}
}

// withDefaults fills zero-valued optional fields. MaxRetries is kept as
// given since zero disables reconnection.
func (c ClientConfig) withDefaults(now time.Time) ClientConfig {
	if c.UID == "" {
		c.UID = GenerateUID(now)
	}
	if c.UpdateInterval == 0 {
		c.UpdateInterval = DefaultUpdateInterval
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = DefaultBaseDelay
	}
	if c.Reconnect.BackoffFactor == 0 {
		c.Reconnect.BackoffFactor = DefaultBackoffFactor
	}
	if c.Reconnect.StableAfter == 0 {
		c.Reconnect.StableAfter = c.Reconnect.BaseDelay
	}
	if c.DuplicateThreshold == 0 {
		c.DuplicateThreshold = DefaultDuplicateThreshold
	}
	if c.HistorySize == 0 {
		c.HistorySize = DefaultHistorySize
	}
	return c
}

// Validate checks the configuration and wraps every problem in ErrInvalidConfig.
func (c ClientConfig) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: server %q is not an absolute URI", ErrInvalidConfig, c.Server)
	}
	if strings.TrimSpace(c.Callsign) == "" {
		return fmt.Errorf("%w: callsign is required", ErrInvalidConfig)
	}
	if !c.Group.Valid() {
		return fmt.Errorf("%w: unknown group %q", ErrInvalidConfig, c.Group)
	}
	if c.UpdateInterval <= 0 || c.DialTimeout <= 0 {
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	}
	if c.Reconnect.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidConfig)
	}
	if c.Reconnect.BaseDelay <= 0 || c.Reconnect.BackoffFactor < 1 {
		return fmt.Errorf("%w: invalid reconnect policy", ErrInvalidConfig)
	}
	if c.DuplicateThreshold < 0 || math.IsNaN(c.DuplicateThreshold) {
		return fmt.Errorf("%w: duplicate threshold must not be negative", ErrInvalidConfig)
	}
	if c.HistorySize < 2 {
		return fmt.Errorf("%w: history size must be at least 2", ErrInvalidConfig)
	}
	return nil
}

const base36Digits = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateUID builds an upper-case id from the base36 millisecond clock and
// four random base36 characters, e.g. "LZ6Q2K1C-7F3A".
func GenerateUID(now time.Time) string {
	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = base36Digits[rand.IntN(len(base36Digits))]
	}
	return strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36) + "-" + string(suffix))
}

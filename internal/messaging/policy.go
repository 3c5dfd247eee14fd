package messaging

import (
	"errors"
	"log/slog"
	"strings"
)

// simulatorPrefix is the provider-reserved number range that never reaches
// a real carrier.
const simulatorPrefix = "+1500555"

// ErrNonSimulatorDestination is returned by the reject policy for any
// destination outside the simulator range.
var ErrNonSimulatorDestination = errors.New("destination is not a simulator number")

// IsSimulatorNumber reports whether the number is in the reserved range.
func IsSimulatorNumber(number string) bool {
	return strings.HasPrefix(number, simulatorPrefix)
}

// DestinationPolicy decides where a message may actually go. It is selected
// by configuration and independent of the provider backend.
type DestinationPolicy interface {
	// Resolve returns the destination to use. ErrNonSimulatorDestination
	// means the send must be skipped entirely.
	Resolve(to string) (string, error)
	Name() string
}

type identityPolicy struct{}

func (identityPolicy) Resolve(to string) (string, error) { return to, nil }
func (identityPolicy) Name() string                      { return "identity" }

// NewIdentityPolicy passes destinations through untouched (production).
func NewIdentityPolicy() DestinationPolicy { return identityPolicy{} }

type redirectPolicy struct {
	simulator   string
	origination string
	logger      *slog.Logger
}

// NewRedirectPolicy substitutes the configured simulator number for every
// real destination (sandbox). When both origination and destination are
// already simulator numbers it warns but lets the send proceed as-is.
func NewRedirectPolicy(simulator, origination string, logger *slog.Logger) DestinationPolicy {
	return &redirectPolicy{simulator: simulator, origination: origination, logger: logger}
}

func (p *redirectPolicy) Resolve(to string) (string, error) {
	if IsSimulatorNumber(to) && IsSimulatorNumber(p.origination) {
		p.logger.Warn("Both origination and destination are simulator numbers; sending as-is",
			"to", MaskPhone(to))
		return to, nil
	}
	if IsSimulatorNumber(to) {
		return to, nil
	}
	return p.simulator, nil
}

func (p *redirectPolicy) Name() string { return "redirect" }

type rejectPolicy struct{}

func (rejectPolicy) Resolve(to string) (string, error) {
	if IsSimulatorNumber(to) {
		return to, nil
	}
	return "", ErrNonSimulatorDestination
}

func (rejectPolicy) Name() string { return "reject" }

// NewRejectPolicy refuses any non-simulator destination (strict sandbox).
func NewRejectPolicy() DestinationPolicy { return rejectPolicy{} }

// PolicyFromName maps a config value to a policy. Unknown names fall back
// to redirect, the safe sandbox default.
func PolicyFromName(name, simulator, origination string, logger *slog.Logger) DestinationPolicy {
	switch strings.ToLower(name) {
	case "identity":
		return NewIdentityPolicy()
	case "reject":
		return NewRejectPolicy()
	default:
		return NewRedirectPolicy(simulator, origination, logger)
	}
}

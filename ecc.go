package ftsboot

import (
	"time"

	"github.com/pkg/errors"
)

// EccSpan is a memory range verified by a single ECC calculation.
type EccSpan struct {
	Address uint32
	Length  uint32
}

// EccState is the state of the verification of one span.
type EccState int

// Verification states. Verified, Mismatch, Timeout and TransportError are
// terminal.
const (
	EccRequest EccState = iota
	EccPolling
	EccReadResult
	EccVerified
	EccMismatch
	EccTimeout
	EccTransportError
)

var eccStateNames = [...]string{
	EccRequest:        "request",
	EccPolling:        "polling",
	EccReadResult:     "read result",
	EccVerified:       "verified",
	EccMismatch:       "mismatch",
	EccTimeout:        "timeout",
	EccTransportError: "transport error",
}

func (s EccState) String() string {
	if s < 0 || int(s) >= len(eccStateNames) {
		return "unknown"
	}
	return eccStateNames[s]
}

// Terminal reports whether no further transition leaves s.
func (s EccState) Terminal() bool {
	return s >= EccVerified
}

// EccVerifier compares the controller's ECC over written memory with the
// one calculated over the source bytes.
type EccVerifier struct {
	bootloader   Bootloader
	settle       time.Duration
	pollInterval time.Duration
	pollLimit    int
}

// NewEccVerifier creates a verifier using the timing of profile.
func NewEccVerifier(bootloader Bootloader, profile Profile) *EccVerifier {
	return &EccVerifier{
		bootloader:   bootloader,
		settle:       profile.EccSettle,
		pollInterval: profile.EccPollInterval,
		pollLimit:    profile.EccPollLimit,
	}
}

// Verify runs the verification of span against src, the bytes written to
// it. It returns the terminal state reached and, unless the span verified,
// the error that caused it.
func (v *EccVerifier) Verify(span EccSpan, src []byte) (EccState, error) {
	state, _, err := v.run(span, func(device uint16) error {
		if host := RegionECC(src); host != device {
			return &EccMismatchError{Span: span, Host: host, Device: device}
		}
		return nil
	})
	return state, err
}

// Calculate returns the controller's ECC over span without comparing it.
func (v *EccVerifier) Calculate(span EccSpan) (uint16, error) {
	_, device, err := v.run(span, nil)
	return device, err
}

func (v *EccVerifier) run(span EccSpan, check func(device uint16) error) (EccState, uint16, error) {
	var (
		state  = EccRequest
		polls  int
		device uint16
		err    error
	)
	for !state.Terminal() {
		switch state {
		case EccRequest:
			if err = v.bootloader.StartECC(span.Address, span.Length); err != nil {
				state = EccTransportError
				break
			}
			time.Sleep(v.settle)
			state = EccPolling

		case EccPolling:
			var ready bool
			ready, err = v.bootloader.ECCFinished()
			polls++
			switch {
			case err != nil:
				state = EccTransportError
			case ready:
				state = EccReadResult
			case polls >= v.pollLimit:
				err = &EccTimeoutError{Span: span, Polls: polls}
				state = EccTimeout
			default:
				time.Sleep(v.pollInterval)
			}

		case EccReadResult:
			if device, err = v.bootloader.ReadECC(); err != nil {
				state = EccTransportError
				break
			}
			if check != nil {
				if err = check(device); err != nil {
					state = EccMismatch
					break
				}
			}
			state = EccVerified
		}
	}

	if state == EccVerified {
		pkgLog.Debugf("ecc at %06X length %X: %04X", span.Address, span.Length, device)
		return state, device, nil
	}
	pkgLog.Errorf("ecc at %06X length %X: %v", span.Address, span.Length, state)
	return state, device, errors.Wrapf(err, "ecc %s", state)
}

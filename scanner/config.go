package scanner

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultTimeout     = 2 * time.Second
	DefaultConcurrency = 100
)

// ScanConfig is the validated input of a single scan. It is passed by value
// and never mutated once built.
type ScanConfig struct {
	Target      netip.Addr    `json:"target"`
	Range       PortRange     `json:"range"`
	Timeout     time.Duration `json:"timeout"`
	Concurrency int           `json:"concurrency"`
	// Rate caps probe starts per second. Zero disables the limit.
	Rate float64 `json:"rate,omitempty"`
}

// ScanParams is the raw external input a ScanConfig is built from.
type ScanParams struct {
	Target      string        `validate:"required,ip"`
	Ports       string        `validate:"-"`
	Timeout     time.Duration `validate:"gt=0"`
	Concurrency int           `validate:"gt=0"`
	Rate        float64       `validate:"gte=0"`
	// LenientRange applies the legacy policy: unparseable ranges scan DefaultPortRange.
	LenientRange bool `validate:"-"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

var fieldErrors = map[string]struct {
	name string
	err  error
}{
	"Target":      {"target", ErrInvalidTarget},
	"Timeout":     {"timeout", ErrInvalidTimeout},
	"Concurrency": {"concurrency", ErrInvalidConcurrency},
	"Rate":        {"rate", ErrInvalidRate},
}

// NewScanConfig validates params and builds the immutable scan configuration.
// The returned error is always a *ConfigError.
func NewScanConfig(params ScanParams) (ScanConfig, error) {
	if err := validate.Struct(params); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			mapped, ok := fieldErrors[fe.Field()]
			if !ok {
				return ScanConfig{}, newConfigError(fe.Field(), fmt.Sprint(fe.Value()), err)
			}
			return ScanConfig{}, newConfigError(mapped.name, fmt.Sprint(fe.Value()),
				fmt.Errorf("%w: failed %q constraint", mapped.err, fe.Tag()))
		}
		return ScanConfig{}, newConfigError("params", "", err)
	}

	target, err := netip.ParseAddr(params.Target)
	if err != nil {
		return ScanConfig{}, newConfigError("target", params.Target, fmt.Errorf("%w: %v", ErrInvalidTarget, err))
	}

	var portRange PortRange
	if params.LenientRange {
		portRange, _ = ParsePortRangeLenient(params.Ports)
	} else {
		portRange, err = ParsePortRange(params.Ports)
		if err != nil {
			return ScanConfig{}, err
		}
	}

	return ScanConfig{
		Target:      target.Unmap(),
		Range:       portRange,
		Timeout:     params.Timeout,
		Concurrency: params.Concurrency,
		Rate:        params.Rate,
	}, nil
}

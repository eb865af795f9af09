package infer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DeviceKind is the class of hardware a model runs on.
type DeviceKind string

const (
	CPU  DeviceKind = "cpu"
	CUDA DeviceKind = "cuda"
)

// Device identifies one accelerator (or the CPU).
type Device struct {
	Kind DeviceKind
	ID   int
}

func (d Device) String() string {
	if d.Kind == CUDA {
		return fmt.Sprintf("cuda:%d", d.ID)
	}
	return string(CPU)
}

// ParseDevice accepts "cpu", "cuda" and "cuda:N".
func ParseDevice(s string) (Device, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "cpu":
		return Device{Kind: CPU}, nil
	case s == "cuda" || s == "gpu":
		return Device{Kind: CUDA}, nil
	case strings.HasPrefix(s, "cuda:"):
		id, err := strconv.Atoi(strings.TrimPrefix(s, "cuda:"))
		if err != nil || id < 0 {
			return Device{}, errors.Errorf("invalid device %q", s)
		}
		return Device{Kind: CUDA, ID: id}, nil
	default:
		return Device{}, errors.Errorf("invalid device %q", s)
	}
}

// DeviceSelector decides where models are loaded.
type DeviceSelector interface {
	Select() Device
}

// FixedSelector always returns the same device.
type FixedSelector struct {
	Device Device
}

func (s FixedSelector) Select() Device { return s.Device }

// AutoSelector picks the first CUDA device when Probe reports it usable and
// falls back to the CPU otherwise.
type AutoSelector struct {
	Probe func(Device) error
	// OnFallback, if set, is told why CUDA was rejected.
	OnFallback func(err error)
}

func (s AutoSelector) Select() Device {
	gpu := Device{Kind: CUDA}
	if s.Probe == nil {
		return Device{Kind: CPU}
	}
	if err := s.Probe(gpu); err != nil {
		if s.OnFallback != nil {
			s.OnFallback(err)
		}
		return Device{Kind: CPU}
	}
	return gpu
}

// NewSelector builds a selector from a configured device name; "auto" uses
// probe.
func NewSelector(name string, probe func(Device) error) (DeviceSelector, error) {
	if strings.EqualFold(strings.TrimSpace(name), "auto") || name == "" {
		return AutoSelector{Probe: probe}, nil
	}
	dev, err := ParseDevice(name)
	if err != nil {
		return nil, err
	}
	return FixedSelector{Device: dev}, nil
}

package counter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned when an exercise name does not map to a Kind.
var ErrUnknownKind = errors.New("unknown exercise kind")

// Kind identifies one of the supported exercise variants.
type Kind int

const (
	PushUp Kind = iota + 1
	Squat
	BicepCurl
	ShoulderPress
)

// Kinds lists every supported exercise in display order.
var Kinds = []Kind{PushUp, Squat, BicepCurl, ShoulderPress}

func (k Kind) String() string {
	switch k {
	case PushUp:
		return "push-up"
	case Squat:
		return "squat"
	case BicepCurl:
		return "bicep-curl"
	case ShoulderPress:
		return "shoulder-press"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts the canonical names ("bicep-curl") as well as the UI
// labels ("Bicep Curl", "Push-Up").
func ParseKind(s string) (Kind, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "-", "_", "-").Replace(norm)
	for _, k := range Kinds {
		if k.String() == norm {
			return k, nil
		}
	}
	if norm == "pushup" {
		return PushUp, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Stage is the phase of the current repetition.
type Stage int

const (
	StageNone Stage = iota
	StageUp
	StageDown
)

func (s Stage) String() string {
	switch s {
	case StageUp:
		return "up"
	case StageDown:
		return "down"
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(b []byte) error {
	switch string(b) {
	case "up":
		*s = StageUp
	case "down":
		*s = StageDown
	case "":
		*s = StageNone
	default:
		return fmt.Errorf("unknown stage %q", b)
	}
	return nil
}

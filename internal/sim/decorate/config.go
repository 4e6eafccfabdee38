package decorate

import (
	"fmt"
	"strings"
)

type ReformKind int

const (
	// KindUnset is the zero value: no decision has been made yet.
	KindUnset ReformKind = iota
	// KindNone explicitly leaves the cell untouched.
	KindNone
	KindPaint
	KindDecorate
	KindClear
)

func (k ReformKind) String() string {
	switch k {
	case KindUnset:
		return "UNSET"
	case KindNone:
		return "NONE"
	case KindPaint:
		return "PAINT"
	case KindDecorate:
		return "DECORATE"
	case KindClear:
		return "CLEAR"
	default:
		return fmt.Sprintf("KIND(%d)", int(k))
	}
}

// ParseKind accepts the names produced by String.
func ParseKind(s string) (ReformKind, error) {
	switch s {
	case "", "UNSET":
		return KindUnset, nil
	case "NONE":
		return KindNone, nil
	case "PAINT":
		return KindPaint, nil
	case "DECORATE":
		return KindDecorate, nil
	case "CLEAR":
		return KindClear, nil
	}
	return KindUnset, fmt.Errorf("unknown reform kind %q", s)
}

func (k ReformKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ReformKind) UnmarshalText(b []byte) error {
	v, err := ParseKind(strings.ToUpper(strings.TrimSpace(string(b))))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// DecorationConfig is the paint/terraform outcome for one cell.
type DecorationConfig struct {
	Kind       ReformKind
	ColorIndex int
}

// None is the explicit "do not touch" decision.
var None = DecorationConfig{Kind: KindNone}

func Paint(color int) DecorationConfig { return DecorationConfig{Kind: KindPaint, ColorIndex: color} }

func (d DecorationConfig) Decided() bool { return d.Kind != KindUnset }

// Touches reports whether applying d changes the cell.
func (d DecorationConfig) Touches() bool { return d.Kind != KindUnset && d.Kind != KindNone }

package sim

import (
	"fmt"

	"github.com/pthm-cable/stim/fluid"
)

// InjectionKind identifies an external write.
type InjectionKind uint8

const (
	InjectVelocity InjectionKind = iota // add (DX, DY) at cell (I, J)
	InjectDye                           // add Amount on Channel at cell (I, J)
	InjectBoundary                      // toggle the obstacle at cell (I, J)
	InjectGravity                       // toggle gravity
	InjectFountain                      // toggle the fountain
	InjectVent                          // toggle the vent
)

var kindNames = [...]string{
	InjectVelocity: "velocity",
	InjectDye:      "dye",
	InjectBoundary: "boundary",
	InjectGravity:  "gravity",
	InjectFountain: "fountain",
	InjectVent:     "vent",
}

func (k InjectionKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// ParseInjectionKind maps a name produced by String back to its kind.
func ParseInjectionKind(name string) (InjectionKind, bool) {
	for k, n := range kindNames {
		if n == name {
			return InjectionKind(k), true
		}
	}
	return 0, false
}

// Injection is an external write applied between steps.
type Injection struct {
	Kind    InjectionKind
	I, J    int
	DX, DY  float64
	Channel int
	Amount  float64
}

// Validate checks the injection's coordinates against an n×n grid with the given
// number of dye channels. Errors wrap fluid.ErrOutOfRange.
func (inj Injection) Validate(n, channels int) error {
	switch inj.Kind {
	case InjectVelocity, InjectDye:
		if inj.I < 0 || inj.I >= n || inj.J < 0 || inj.J >= n {
			return fmt.Errorf("%w: cell (%d, %d) not in [0, %d)", fluid.ErrOutOfRange, inj.I, inj.J, n)
		}
		if inj.Kind == InjectDye && (inj.Channel < 0 || inj.Channel >= channels) {
			return fmt.Errorf("%w: channel %d not in [0, %d)", fluid.ErrOutOfRange, inj.Channel, channels)
		}
	case InjectBoundary:
		if inj.I < 1 || inj.I > n-2 || inj.J < 1 || inj.J > n-2 {
			return fmt.Errorf("%w: boundary cell (%d, %d) not in [1, %d]", fluid.ErrOutOfRange, inj.I, inj.J, n-2)
		}
	case InjectGravity, InjectFountain, InjectVent:
	default:
		return fmt.Errorf("unknown injection kind %d", inj.Kind)
	}
	return nil
}

// Apply performs one injection immediately.
func (s *Simulation) Apply(inj Injection) error {
	solver := s.solver
	switch inj.Kind {
	case InjectVelocity:
		return solver.AddVelocity(inj.I, inj.J, inj.DX, inj.DY)
	case InjectDye:
		return solver.AddDye(inj.I, inj.J, inj.Channel, inj.Amount)
	case InjectBoundary:
		return solver.ToggleBoundary(inj.I, inj.J)
	case InjectGravity:
		return s.toggle(&s.cfg.Gravity.Enabled)
	case InjectFountain:
		return s.toggle(&s.cfg.Fountain.Enabled)
	case InjectVent:
		return s.toggle(&s.cfg.Vent.Enabled)
	}
	return fmt.Errorf("unknown injection kind %d", inj.Kind)
}

// toggle flips a force source switch, reverting if the result does not validate.
func (s *Simulation) toggle(flag *bool) error {
	*flag = !*flag
	if err := s.cfg.Validate(); err != nil {
		*flag = !*flag
		return err
	}
	return nil
}

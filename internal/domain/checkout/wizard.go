// Package checkout turns a cart into a paid order.
package checkout

import "github.com/go-faster/errors"

// Step is a stage of the checkout wizard.
type Step int

const (
	StepBilling Step = iota
	StepShipping
	StepPayment
	StepConfirm
)

const stepCount = int(StepConfirm) + 1

func (s Step) String() string {
	switch s {
	case StepBilling:
		return "billing"
	case StepShipping:
		return "shipping"
	case StepPayment:
		return "payment"
	case StepConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

var (
	// ErrStepOutOfOrder is returned when completing a step other than the current one.
	ErrStepOutOfOrder = errors.New("checkout step completed out of order")
	// ErrNoPreviousStep is returned when going back from the first step.
	ErrNoPreviousStep = errors.New("already at the first checkout step")
	// ErrNotReady is returned when submitting before every step is complete.
	ErrNotReady = errors.New("checkout is not complete")
)

// Wizard is the linear billing, shipping, payment, confirm flow.
type Wizard struct {
	current   Step
	completed [stepCount]bool
}

// NewWizard starts at the billing step.
func NewWizard() *Wizard {
	return &Wizard{current: StepBilling}
}

// Current returns the step awaiting completion.
func (w *Wizard) Current() Step {
	return w.current
}

// Complete marks step done and advances. Only the current step may be
// completed.
func (w *Wizard) Complete(step Step) error {
	if step != w.current {
		return errors.Wrapf(ErrStepOutOfOrder, "expected %s, got %s", w.current, step)
	}
	w.completed[step] = true
	if w.current < StepConfirm {
		w.current++
	}
	return nil
}

// Back returns to the previous step.
func (w *Wizard) Back() error {
	if w.current == StepBilling {
		return ErrNoPreviousStep
	}
	w.current--
	return nil
}

// Ready reports whether the order can be submitted.
func (w *Wizard) Ready() bool {
	if w.current != StepConfirm {
		return false
	}
	for _, done := range w.completed {
		if !done {
			return false
		}
	}
	return true
}

// Progress returns the completed share of steps in percent.
func (w *Wizard) Progress() int {
	n := 0
	for _, done := range w.completed {
		if done {
			n++
		}
	}
	return n * 100 / stepCount
}

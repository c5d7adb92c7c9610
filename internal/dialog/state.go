// Package dialog holds the per-user ticket dialog: its state, the in-memory
// store and the transition engine.
package dialog

import "fmt"

// Transport is the vehicle kind chosen in the first step.
type Transport int

const (
	// TransportUnset means the user has not chosen yet.
	TransportUnset Transport = iota
	// TransportBus selects the bus route table.
	TransportBus
	// TransportTrolleybus selects the trolleybus route table.
	TransportTrolleybus
)

// Label returns the name printed on the ticket.
func (t Transport) Label() string {
	switch t {
	case TransportBus:
		return "Автобус"
	case TransportTrolleybus:
		return "Троллейбус"
	default:
		return ""
	}
}

// String implements fmt.Stringer for logs.
func (t Transport) String() string {
	switch t {
	case TransportBus:
		return "bus"
	case TransportTrolleybus:
		return "trolleybus"
	case TransportUnset:
		return "unset"
	default:
		return fmt.Sprintf("transport(%d)", int(t))
	}
}

// Step names the field a state is waiting for.
type Step string

const (
	StepTransport Step = "transport"
	StepRouteNum  Step = "route_num"
	StepDirection Step = "direction"
	StepGarage    Step = "garage_number"
	StepComplete  Step = "complete"
)

// State is one user's progress through the dialog. Fields are filled strictly
// in order: Transport, RouteNum (with Directions), Route, GarageNumber.
// Nil pointers mean "not set yet".
type State struct {
	Transport    Transport
	RouteNum     *string
	Directions   *[2]string
	Route        *string
	RouteManual  bool
	GarageNumber *string
}

// Step reports which field the state is waiting for.
func (s State) Step() Step {
	switch {
	case s.Transport == TransportUnset:
		return StepTransport
	case s.RouteNum == nil:
		return StepRouteNum
	case s.Route == nil && !s.RouteManual:
		return StepDirection
	case s.GarageNumber == nil:
		return StepGarage
	default:
		return StepComplete
	}
}

// Ticket is the finalized dialog data handed to the renderer.
type Ticket struct {
	TransportLabel string
	RouteNum       string
	Route          string
	GarageNumber   string
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr(s string) *string { return &s }

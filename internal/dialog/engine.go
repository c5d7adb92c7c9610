package dialog

import (
	"fmt"
	"strings"
)

// User-visible texts.
const (
	MsgStart          = "Выберите тип транспорта:\n1. Автобус\n2. Троллейбус"
	MsgTransportRetry = "Введите тип транспорта:\n1. Автобус\n2. Троллейбус\n(можно ввести цифру или слово)"
	MsgRouteBus       = "Введите номер маршрута (например, 12):"
	MsgRouteTrolley   = "Введите номер маршрута (например, 2):"
	MsgRouteNotFound  = "Маршрут не найден, введите гаражный номер:"
	MsgGarage         = "Введите гаражный номер:"
	MsgDirectionRetry = "Некорректный ввод. Введите 1 или 2:"
	MsgUnexpected     = "❗ Неожиданное сообщение. Вы можете:\n" +
		"🔄 Ввести любой символ, чтобы начать заново\n" +
		"📌 Или нажмите /start, чтобы снова выбрать тип транспорта"
)

// ActionKind tells the caller what to do after a transition.
type ActionKind int

const (
	// ActionPrompt sends Text and keeps the returned state.
	ActionPrompt ActionKind = iota
	// ActionRender renders Ticket; the session ends afterwards whatever the outcome.
	ActionRender
	// ActionReset sends Text and deletes the state.
	ActionReset
)

func (k ActionKind) String() string {
	switch k {
	case ActionPrompt:
		return "prompt"
	case ActionRender:
		return "render"
	case ActionReset:
		return "reset"
	default:
		return fmt.Sprintf("action(%d)", int(k))
	}
}

// Action is the outbound side of a transition.
type Action struct {
	Kind ActionKind
	Text string
	// Ticket is set for ActionRender.
	Ticket *Ticket
	// Invalid marks a re-prompt that left the state unchanged.
	Invalid bool
}

// Engine computes dialog transitions against fixed route tables.
type Engine struct {
	routes Routes
}

// NewEngine creates an engine over routes.
func NewEngine(routes Routes) *Engine {
	return &Engine{routes: routes}
}

// Transition applies one inbound text to st. It never mutates st in place and
// performs no I/O: rendering is requested through the returned action.
func (e *Engine) Transition(st State, text string) (State, Action) {
	switch st.Step() {
	case StepTransport:
		return e.chooseTransport(st, text)
	case StepRouteNum:
		return e.setRouteNum(st, text)
	case StepDirection:
		return e.chooseDirection(st, text)
	case StepGarage:
		return e.setGarage(st, text)
	default:
		return State{}, Action{Kind: ActionReset, Text: MsgUnexpected}
	}
}

func (e *Engine) chooseTransport(st State, text string) (State, Action) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "1", "автобус":
		st.Transport = TransportBus
		return st, Action{Kind: ActionPrompt, Text: MsgRouteBus}
	case "2", "троллейбус":
		st.Transport = TransportTrolleybus
		return st, Action{Kind: ActionPrompt, Text: MsgRouteTrolley}
	default:
		return st, Action{Kind: ActionPrompt, Text: MsgTransportRetry, Invalid: true}
	}
}

func (e *Engine) setRouteNum(st State, text string) (State, Action) {
	num := NormalizeRouteNum(text)
	st.RouteNum = ptr(num)
	if dirs, ok := e.routes.Lookup(st.Transport, num); ok {
		st.Directions = &dirs
		return st, Action{Kind: ActionPrompt, Text: DirectionPrompt(dirs)}
	}
	st.RouteManual = true
	st.Route = ptr(num)
	return st, Action{Kind: ActionPrompt, Text: MsgRouteNotFound}
}

func (e *Engine) chooseDirection(st State, text string) (State, Action) {
	if st.Directions == nil {
		return State{}, Action{Kind: ActionReset, Text: MsgUnexpected}
	}
	switch strings.TrimSpace(text) {
	case "1":
		st.Route = ptr(st.Directions[0])
	case "2":
		st.Route = ptr(st.Directions[1])
	default:
		return st, Action{Kind: ActionPrompt, Text: MsgDirectionRetry, Invalid: true}
	}
	return st, Action{Kind: ActionPrompt, Text: MsgGarage}
}

func (e *Engine) setGarage(st State, text string) (State, Action) {
	st.GarageNumber = ptr(strings.TrimSpace(text))
	return st, Action{Kind: ActionRender, Ticket: &Ticket{
		TransportLabel: st.Transport.Label(),
		RouteNum:       deref(st.RouteNum),
		Route:          deref(st.Route),
		GarageNumber:   deref(st.GarageNumber),
	}}
}

// DirectionPrompt lists both directions for the user to pick from.
func DirectionPrompt(dirs [2]string) string {
	return fmt.Sprintf("Выберите направление:\n1. %s\n2. %s", dirs[0], dirs[1])
}

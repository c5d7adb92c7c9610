package dialog

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoutes() Routes {
	return Routes{
		Bus: map[string][2]string{
			"12":   {"X—Y", "Y—X"},
			"113а": {"A—B", "B—A"},
		},
		Trolleybus: map[string][2]string{
			"2": {"P—Q", "Q—P"},
		},
	}
}

func TestTransitionEndToEnd(t *testing.T) {
	eng := NewEngine(testRoutes())
	st := State{}

	st, act := eng.Transition(st, "1")
	assert.Equal(t, ActionPrompt, act.Kind)
	assert.Equal(t, MsgRouteBus, act.Text)
	assert.Equal(t, TransportBus, st.Transport)

	st, act = eng.Transition(st, "12")
	assert.Equal(t, ActionPrompt, act.Kind)
	assert.Equal(t, "Выберите направление:\n1. X—Y\n2. Y—X", act.Text)
	require.NotNil(t, st.Directions)
	assert.Equal(t, [2]string{"X—Y", "Y—X"}, *st.Directions)

	st, act = eng.Transition(st, "1")
	assert.Equal(t, MsgGarage, act.Text)
	require.NotNil(t, st.Route)
	assert.Equal(t, "X—Y", *st.Route)

	st, act = eng.Transition(st, "AB1234")
	require.Equal(t, ActionRender, act.Kind)
	require.NotNil(t, act.Ticket)
	assert.Equal(t, Ticket{
		TransportLabel: "Автобус",
		RouteNum:       "12",
		Route:          "X—Y",
		GarageNumber:   "AB1234",
	}, *act.Ticket)
	assert.Equal(t, StepComplete, st.Step())
}

func TestTransitionTransportChoice(t *testing.T) {
	eng := NewEngine(testRoutes())

	cases := []struct {
		in   string
		want Transport
		text string
	}{
		{"1", TransportBus, MsgRouteBus},
		{" Автобус ", TransportBus, MsgRouteBus},
		{"2", TransportTrolleybus, MsgRouteTrolley},
		{"ТРОЛЛЕЙБУС", TransportTrolleybus, MsgRouteTrolley},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			st, act := eng.Transition(State{}, tc.in)
			assert.Equal(t, tc.want, st.Transport)
			assert.Equal(t, tc.text, act.Text)
			assert.False(t, act.Invalid)
		})
	}
}

func TestTransitionInvalidInputKeepsState(t *testing.T) {
	eng := NewEngine(testRoutes())

	st, act := eng.Transition(State{}, "tram")
	assert.Equal(t, State{}, st)
	assert.True(t, act.Invalid)
	assert.Equal(t, MsgTransportRetry, act.Text)

	st, _ = eng.Transition(State{}, "1")
	st, _ = eng.Transition(st, "12")
	before := st
	for _, in := range []string{"3", "", "один", "12"} {
		next, act := eng.Transition(st, in)
		assert.Equal(t, before, next, "input %q must not mutate", in)
		assert.Equal(t, ActionPrompt, act.Kind)
		assert.Equal(t, MsgDirectionRetry, act.Text)
		assert.True(t, act.Invalid)
	}
}

func TestTransitionSecondDirection(t *testing.T) {
	eng := NewEngine(testRoutes())
	st, _ := eng.Transition(State{}, "2")
	st, _ = eng.Transition(st, "2")
	st, _ = eng.Transition(st, " 2 ")
	require.NotNil(t, st.Route)
	assert.Equal(t, "Q—P", *st.Route)
}

func TestTransitionManualRoute(t *testing.T) {
	eng := NewEngine(testRoutes())
	st, _ := eng.Transition(State{}, "1")

	st, act := eng.Transition(st, "999")
	assert.Equal(t, MsgRouteNotFound, act.Text)
	assert.True(t, st.RouteManual)
	require.NotNil(t, st.Route)
	assert.Equal(t, "999", *st.Route)
	assert.Nil(t, st.Directions)
	assert.Equal(t, StepGarage, st.Step(), "direction step is skipped")

	_, act = eng.Transition(st, "7001")
	require.Equal(t, ActionRender, act.Kind)
	assert.Equal(t, Ticket{TransportLabel: "Автобус", RouteNum: "999", Route: "999", GarageNumber: "7001"}, *act.Ticket)
}

func TestTransitionTablesAreIndependent(t *testing.T) {
	eng := NewEngine(testRoutes())
	st, _ := eng.Transition(State{}, "2")
	st, _ = eng.Transition(st, "12")
	assert.True(t, st.RouteManual, "bus route 12 is unknown to the trolleybus table")
}

func TestTransitionNormalizesRouteNum(t *testing.T) {
	eng := NewEngine(testRoutes())
	st, _ := eng.Transition(State{}, "1")
	st, act := eng.Transition(st, " 113A ")
	require.NotNil(t, st.RouteNum)
	assert.Equal(t, "113а", *st.RouteNum)
	assert.False(t, st.RouteManual)
	assert.Equal(t, DirectionPrompt([2]string{"A—B", "B—A"}), act.Text)
}

func TestTransitionUnexpectedState(t *testing.T) {
	eng := NewEngine(testRoutes())
	full := State{
		Transport:    TransportBus,
		RouteNum:     ptr("12"),
		Route:        ptr("X—Y"),
		GarageNumber: ptr("1"),
	}
	st, act := eng.Transition(full, "anything")
	assert.Equal(t, ActionReset, act.Kind)
	assert.Equal(t, MsgUnexpected, act.Text)
	assert.Equal(t, State{}, st)
}

func TestNormalizeRouteNum(t *testing.T) {
	assert.Equal(t, "12а", NormalizeRouteNum("12a"))
	assert.Equal(t, "12а", NormalizeRouteNum(" 12A\n"))
	assert.Equal(t, "12а", NormalizeRouteNum("12А"))
	assert.Equal(t, "", NormalizeRouteNum("   "))
}

var stepRank = map[Step]int{
	StepTransport: 0,
	StepRouteNum:  1,
	StepDirection: 2,
	StepGarage:    3,
	StepComplete:  4,
}

// requirePrefix checks that only a leading run of fields is set.
func requirePrefix(t *testing.T, st State, trail []string) {
	t.Helper()
	if st.RouteNum != nil {
		require.NotEqual(t, TransportUnset, st.Transport, "route number without transport after %q", trail)
	}
	if st.Directions != nil {
		require.NotNil(t, st.RouteNum, "directions without route number after %q", trail)
	}
	if st.Route != nil {
		require.NotNil(t, st.RouteNum, "route without route number after %q", trail)
	}
	if st.RouteManual {
		require.NotNil(t, st.Route, "manual route unset after %q", trail)
		require.Nil(t, st.Directions, "manual route has directions after %q", trail)
	}
	if st.GarageNumber != nil {
		require.NotNil(t, st.Route, "garage number without route after %q", trail)
	}
}

func TestTransitionSequencesKeepPrefixOrder(t *testing.T) {
	eng := NewEngine(testRoutes())
	inputs := []string{"1", "2", " Автобус ", "троллейбус", "tram", "", "12", "113A", "999", "3", "AB1234", "😀"}
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		st := State{}
		var trail []string
		for i := 0; i < 12; i++ {
			text := inputs[rng.Intn(len(inputs))]
			trail = append(trail, text)

			next, act := eng.Transition(st, text)
			requirePrefix(t, next, trail)

			switch act.Kind {
			case ActionReset:
				require.Equal(t, State{}, next)
			case ActionRender:
				require.Equal(t, StepComplete, next.Step())
				require.NotNil(t, act.Ticket)
				// the session ends once the ticket is handed off
				next = State{}
			default:
				require.GreaterOrEqual(t, stepRank[next.Step()], stepRank[st.Step()], "step went back after %q", trail)
				require.Less(t, stepRank[next.Step()], stepRank[StepComplete])
				if act.Invalid {
					require.Equal(t, st, next, "invalid input changed state after %q", trail)
				}
			}
			st = next
		}
	}
}

package status

import "testing"

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Disconnected {
		t.Errorf("initial state = %s, want DISCONNECTED", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		name string
		walk []State
	}{
		{"connect", []State{Connecting, Connected}},
		{"connect then disconnect", []State{Connecting, Connected, Disconnected}},
		{"handshake failure", []State{Connecting, Error, Disconnected}},
		{"connect cancelled", []State{Connecting, Disconnected}},
		{"reconnect after failure", []State{Connecting, Error, Disconnected, Connecting, Connected}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(nil)
			for _, s := range tt.walk {
				if err := m.Transition(s); err != nil {
					t.Fatalf("transition to %s: %v (current %s)", s, err, m.Current())
				}
			}
			if m.Current() != tt.walk[len(tt.walk)-1] {
				t.Errorf("final state = %s, want %s", m.Current(), tt.walk[len(tt.walk)-1])
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		walk []State
		to   State
	}{
		{"disconnected to connected", nil, Connected},
		{"disconnected to error", nil, Error},
		{"connected to connecting", []State{Connecting, Connected}, Connecting},
		{"connected to error", []State{Connecting, Connected}, Error},
		{"error to connected", []State{Connecting, Error}, Connected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(nil)
			for _, s := range tt.walk {
				if err := m.Transition(s); err != nil {
					t.Fatal(err)
				}
			}
			before := m.Current()
			if err := m.Transition(tt.to); err == nil {
				t.Fatalf("Transition(%s -> %s) should fail", before, tt.to)
			}
			if m.Current() != before {
				t.Errorf("state changed to %s after rejected transition", m.Current())
			}
		})
	}
}

func TestTransitionNotifiesObserver(t *testing.T) {
	var got []Change
	m := NewMachine(func(c Change) { got = append(got, c) })

	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(Connected); err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 {
		t.Fatalf("observer saw %d changes, want 2", len(got))
	}
	if got[0] != (Change{Disconnected, Connecting}) {
		t.Errorf("first change = %+v", got[0])
	}
	if got[1] != (Change{Connecting, Connected}) {
		t.Errorf("second change = %+v", got[1])
	}
}

func TestRejectedTransitionDoesNotNotify(t *testing.T) {
	calls := 0
	m := NewMachine(func(Change) { calls++ })

	_ = m.Transition(Connected) // invalid from Disconnected
	if calls != 0 {
		t.Errorf("observer called %d times for rejected transition", calls)
	}
}

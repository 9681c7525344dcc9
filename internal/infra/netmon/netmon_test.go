package netmon_test

import (
	"testing"

	"github.com/genzilabs/monger-client/internal/infra/netmon"
)

func TestMonitor_InitialState(t *testing.T) {
	m := netmon.New(netmon.Offline)
	if !m.IsOffline() {
		t.Fatal("expected initial state offline")
	}
	if m.Current() != netmon.Offline {
		t.Errorf("expected Current()=offline, got %s", m.Current())
	}
}

func TestMonitor_Transition(t *testing.T) {
	m := netmon.New(netmon.Online)

	m.SetState(netmon.Offline)
	if !m.IsOffline() {
		t.Fatal("expected offline after SetState")
	}

	m.SetState(netmon.Online)
	if !m.IsOnline() {
		t.Fatal("expected online after SetState")
	}
}

func TestMonitor_NotifiesOnlyOnTransition(t *testing.T) {
	m := netmon.New(netmon.Online)

	var got []netmon.State
	unsub := m.Subscribe(func(s netmon.State) { got = append(got, s) })
	defer unsub()

	m.SetState(netmon.Online)  // no transition
	m.SetState(netmon.Offline) // transition
	m.SetState(netmon.Offline) // no transition
	m.SetState(netmon.Online)  // transition

	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d (%v)", len(got), got)
	}
	if got[0] != netmon.Offline || got[1] != netmon.Online {
		t.Errorf("unexpected notification sequence: %v", got)
	}
}

func TestMonitor_Unsubscribe(t *testing.T) {
	m := netmon.New(netmon.Online)

	calls := 0
	unsub := m.Subscribe(func(netmon.State) { calls++ })
	unsub()

	m.SetState(netmon.Offline)
	if calls != 0 {
		t.Fatalf("expected no notifications after unsubscribe, got %d", calls)
	}
}

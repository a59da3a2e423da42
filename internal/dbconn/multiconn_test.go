package dbconn

import "testing"

func TestArgsForNil(t *testing.T) {
	args, err := argsFor(nil, 0)
	if err != nil || args != nil {
		t.Fatalf("argsFor(nil) = %v, %v", args, err)
	}
}

func TestArgsForBroadcast(t *testing.T) {
	args, err := argsFor([]any{"x", 1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(args) != 2 || args[0] != "x" {
		t.Errorf("args = %v", args)
	}
}

func TestArgsForPerMember(t *testing.T) {
	p := PerMember{{"slot-1"}, {"slot-2"}}
	a0, err := argsFor(p, 0)
	if err != nil {
		t.Fatal(err)
	}
	if a0[0] != "slot-1" {
		t.Errorf("member 0 args = %v", a0)
	}
	a1, err := argsFor(p, 1)
	if err != nil {
		t.Fatal(err)
	}
	if a1[0] != "slot-2" {
		t.Errorf("member 1 args = %v", a1)
	}
}

func TestArgsForPerMemberOutOfRange(t *testing.T) {
	p := PerMember{{"slot-1"}}
	if _, err := argsFor(p, 1); err == nil {
		t.Fatal("expected error for out-of-range member index")
	}
}

func TestHostsReturnsCopy(t *testing.T) {
	m := &MultiConn{hosts: []string{"host=a", "host=b"}}
	h := m.Hosts()
	h[0] = "mutated"
	if m.hosts[0] != "host=a" {
		t.Error("Hosts() should return a defensive copy")
	}
}

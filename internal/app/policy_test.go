package app

import "testing"

func TestSimplePolicy(t *testing.T) {
	p := SimplePolicy{}
	if got := p.OnBackPressure("c1", "state"); got != DropFrame {
		t.Errorf("state = %v, want DropFrame", got)
	}
	for _, typ := range []string{"result", "devices", "pong"} {
		if got := p.OnBackPressure("c1", typ); got != Disconnect {
			t.Errorf("%s = %v, want Disconnect", typ, got)
		}
	}
}

package principal

import "testing"

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusActive, StatusSuspended} {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if Status("expired").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := &Principal{ID: "u1", Status: StatusActive, Metadata: map[string]any{"team": "ops"}}
	c := p.Clone()
	c.Metadata["team"] = "eng"
	c.Status = StatusSuspended
	if p.Metadata["team"] != "ops" || !p.Active() {
		t.Fatal("clone shares state with original")
	}
}

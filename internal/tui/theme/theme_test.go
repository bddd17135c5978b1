package theme

import "testing"

func TestByNameFallsBack(t *testing.T) {
	if got := ByName("classic").Name; got != "classic" {
		t.Errorf("ByName(classic) = %q", got)
	}
	if got := ByName("no-such-theme").Name; got != FlexokiDark.Name {
		t.Errorf("unknown theme = %q, want %q", got, FlexokiDark.Name)
	}
}

func TestThemesDistinguishWarning(t *testing.T) {
	for _, th := range All {
		if th.Blue == "" || th.Red == "" || th.Blue == th.Red {
			t.Errorf("theme %s: blue %q red %q must be set and distinct", th.Name, th.Blue, th.Red)
		}
	}
}

func TestSetActive(t *testing.T) {
	defer SetActive(FlexokiDark.Name)
	SetActive("tokyo-night")
	if Active.Name != "tokyo-night" {
		t.Errorf("Active = %q", Active.Name)
	}
}

package langmeta

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"de", "Deutsch"},
		{"pt-BR", "Português (Brasil)"},
		{"pt_BR", "Português (Brasil)"},
		{"pt-br", "Português (Brasil)"},
		{"de-LI", "Deutsch"}, // unknown variant falls back to base
		{"xx", "xx"},         // unknown code echoes itself
	}
	for _, tt := range tests {
		if got := Resolve(tt.lang).Name; got != tt.want {
			t.Errorf("Resolve(%q).Name = %q, want %q", tt.lang, got, tt.want)
		}
	}
}

func TestDisplay(t *testing.T) {
	if got := Display("de"); got != "🇩🇪 Deutsch (de)" {
		t.Errorf("Display(de) = %q", got)
	}
	if got := Display("xx"); got != "xx (xx)" {
		t.Errorf("Display(xx) = %q", got)
	}
}

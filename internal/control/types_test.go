package control

import "testing"

// =============================================================================
// Scope Tests
// =============================================================================

func TestScopeKey(t *testing.T) {
	s := Scope{Kind: ScopePod, ID: "pod-3"}
	if s.Key() != "pod:pod-3" {
		t.Errorf("Key() = %q, want pod:pod-3", s.Key())
	}
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		key    string
		want   Scope
		wantOK bool
	}{
		{"pod:pod-3", Scope{Kind: ScopePod, ID: "pod-3"}, true},
		{"room:veg-1", Scope{Kind: ScopeRoom, ID: "veg-1"}, true},
		{"batch_group:grp-a1b2", Scope{Kind: ScopeBatchGroup, ID: "grp-a1b2"}, true},
		{"site:site-001", Scope{Kind: ScopeSite, ID: "site-001"}, true},
		{"rack:r-1", Scope{}, false},
		{"pod:", Scope{}, false},
		{"pod-3", Scope{}, false},
		{"", Scope{}, false},
	}

	for _, tt := range tests {
		got, err := ParseScope(tt.key)
		if tt.wantOK != (err == nil) {
			t.Errorf("ParseScope(%q) error = %v, wantOK %v", tt.key, err, tt.wantOK)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseScope(%q) = %+v, want %+v", tt.key, got, tt.want)
		}
	}
}

func TestScopeValid(t *testing.T) {
	if (Scope{Kind: ScopePod}).Valid() {
		t.Error("a scope without an ID must be invalid")
	}
	if (Scope{Kind: "rack", ID: "r-1"}).Valid() {
		t.Error("an unknown kind must be invalid")
	}
}

func TestPairKey(t *testing.T) {
	got := PairKey(Scope{Kind: ScopePod, ID: "pod-3"}, ParamTemperature)
	if got != "pod:pod-3|temperature" {
		t.Errorf("PairKey() = %q", got)
	}
}

// =============================================================================
// Precedence Tests
// =============================================================================

func TestPrecedenceOrdering(t *testing.T) {
	desc := DescendingPrecedence()
	for i := 1; i < len(desc); i++ {
		if !desc[i-1].Outranks(desc[i]) {
			t.Errorf("%s should outrank %s", desc[i-1], desc[i])
		}
		if desc[i].Outranks(desc[i-1]) {
			t.Errorf("%s should not outrank %s", desc[i], desc[i-1])
		}
	}
	if PrecedenceManual.Outranks(PrecedenceManual) {
		t.Error("Outranks must be strict")
	}
}

func TestPrecedenceRoundTrip(t *testing.T) {
	for _, p := range DescendingPrecedence() {
		got, err := ParsePrecedence(p.String())
		if err != nil {
			t.Errorf("ParsePrecedence(%s) error = %v", p, err)
			continue
		}
		if got != p {
			t.Errorf("ParsePrecedence(%s) = %v, want %v", p.String(), got, p)
		}
	}
	if _, err := ParsePrecedence("vibes"); err == nil {
		t.Error("ParsePrecedence should reject unknown names")
	}
	if Precedence(0).Valid() {
		t.Error("the zero precedence must be invalid")
	}
}

func TestParameterValid(t *testing.T) {
	for _, p := range AllParameters() {
		if !p.Valid() {
			t.Errorf("%s should be valid", p)
		}
	}
	if Parameter("colour").Valid() {
		t.Error("an unknown parameter must be invalid")
	}
}

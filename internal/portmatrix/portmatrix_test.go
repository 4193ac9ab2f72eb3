package portmatrix

import (
	"sort"
	"strings"
	"testing"
)

func TestLoadDedupAndSort(t *testing.T) {
	m, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.TCP()) == 0 || len(m.UDP()) == 0 {
		t.Fatal("expected non-empty universes")
	}
	if !sort.StringsAreSorted(m.TCP()) || !sort.StringsAreSorted(m.UDP()) {
		t.Fatal("universe not sorted")
	}
}

func TestInvertComplementAndDisjoint(t *testing.T) {
	m := &Matrix{tcp: []string{"22", "80", "443"}, udp: []string{"53"}}

	invTCP, invUDP := m.Invert("80", "")
	if invTCP != "22,443" {
		t.Fatalf("invTCP = %q, want 22,443", invTCP)
	}
	if invUDP != "53" {
		t.Fatalf("invUDP = %q, want 53", invUDP)
	}

	selected := toSet("80")
	for _, tok := range strings.Split(invTCP, ",") {
		if _, ok := selected[tok]; ok {
			t.Fatalf("inverse must be disjoint from selection, found %q", tok)
		}
	}
}

func TestInvertEmptySelectionYieldsFullUniverse(t *testing.T) {
	m := &Matrix{tcp: []string{"22", "80", "443"}, udp: []string{"53"}}
	invTCP, invUDP := m.Invert("", "")
	if invTCP != "22,80,443" {
		t.Fatalf("invTCP = %q, want full universe", invTCP)
	}
	if invUDP != "53" {
		t.Fatalf("invUDP = %q, want full universe", invUDP)
	}
}

func TestInvertFullSelectionYieldsEmpty(t *testing.T) {
	m := &Matrix{tcp: []string{"22", "80", "443"}, udp: []string{"53"}}
	invTCP, invUDP := m.Invert("22,80,443", "53")
	if invTCP != "" || invUDP != "" {
		t.Fatalf("expected empty inverse, got %q / %q", invTCP, invUDP)
	}
}

func TestInvertDoubleInversionRoundTrips(t *testing.T) {
	m := &Matrix{tcp: []string{"22", "80", "443", "8080"}, udp: []string{}}
	selected := "80,8080"
	invTCP, _ := m.Invert(selected, "")
	doubleInvTCP, _ := m.Invert(invTCP, "")
	if doubleInvTCP != "80,8080" {
		t.Fatalf("double inversion = %q, want %q", doubleInvTCP, selected)
	}
}

func TestInvertEmptyUniverseAlwaysEmpty(t *testing.T) {
	m := &Matrix{tcp: nil, udp: nil}
	invTCP, invUDP := m.Invert("22,80", "53")
	if invTCP != "" || invUDP != "" {
		t.Fatalf("expected empty inverse over empty universe, got %q / %q", invTCP, invUDP)
	}
}

func TestInvertIgnoresWhitespaceAroundTokens(t *testing.T) {
	m := &Matrix{tcp: []string{"22", "80", "443"}}
	invTCP, _ := m.Invert(" 80 , 22 ", "")
	if invTCP != "443" {
		t.Fatalf("invTCP = %q, want 443", invTCP)
	}
}

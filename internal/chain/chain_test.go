package chain

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want Name
	}{
		{"Polygon", "polygon"},
		{"  polygon  ", "polygon"},
		{"POLYGON", "polygon"},
		{"Binance  Smart   Chain", "binance smart chain"},
		{"", ""},
		{"   ", ""},
		{"\tArbitrum \n", "arbitrum"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.raw); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNameSlug(t *testing.T) {
	tests := []struct {
		name Name
		want string
	}{
		{"polygon", "polygon"},
		{"binance smart chain", "binance-smart-chain"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := tt.name.Slug(); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNameEmpty(t *testing.T) {
	if !Normalize("   ").Empty() {
		t.Error("Normalize(whitespace).Empty() = false, want true")
	}
	if Normalize("base").Empty() {
		t.Error("Normalize(base).Empty() = true, want false")
	}
}

func TestFallbackTables(t *testing.T) {
	if chainIDFallback["ethereum"] != 1 {
		t.Errorf("chainIDFallback[ethereum] = %d, want 1", chainIDFallback["ethereum"])
	}
	if chainIDFallback["polygon"] != 137 {
		t.Errorf("chainIDFallback[polygon] = %d, want 137", chainIDFallback["polygon"])
	}
	if nativeTokenFallback["gnosis"] != "xDAI" {
		t.Errorf("nativeTokenFallback[gnosis] = %q, want xDAI", nativeTokenFallback["gnosis"])
	}
	for name := range chainIDFallback {
		if _, okk := nativeTokenFallback[name]; !okk {
			t.Errorf("chain %q has a chain-id fallback but no native-token fallback", name)
		}
	}
}

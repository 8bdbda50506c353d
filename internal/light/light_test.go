package light

import "testing"

func boolPtr(b bool) *bool {
	return &b
}

func TestValidateMAC(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "valid_lowercase", input: "aa:bb:cc:dd:ee:ff", want: "AA:BB:CC:DD:EE:FF"},
		{name: "valid_with_spaces", input: "  DF:24:03:b0:00:A1 ", want: "DF:24:03:B0:00:A1"},
		{name: "too_few_octets", input: "AA:BB:CC:DD:EE", wantErr: true},
		{name: "short_octet", input: "A:BB:CC:DD:EE:FF", wantErr: true},
		{name: "non_hex_octet", input: "GG:BB:CC:DD:EE:FF", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateMAC(tt.input, "test address")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ValidateMAC(%q) expected error, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateMAC(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ValidateMAC(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplitMAC(t *testing.T) {
	got, err := SplitMAC("DF:24:03:B0:00:A1")
	if err != nil {
		t.Fatalf("SplitMAC: %v", err)
	}
	want := []byte{0xDF, 0x24, 0x03, 0xB0, 0x00, 0xA1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SplitMAC octet %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestCorrectedName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"NEEWER-20210034&FFFF", "MS60B"},
		{"NW-20230108", "HB80C"},
		{"NEEWER SL90", "NEEWER SL90"}, // no needle, passes through
		{"", "Unknown"},
	}
	for _, tt := range tests {
		if got := CorrectedName(tt.raw); got != tt.want {
			t.Errorf("CorrectedName(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCapabilities(t *testing.T) {
	tests := []struct {
		name        string
		wantCCTOnly bool
		wantVariant Variant
		wantMin     int
		wantMax     int
	}{
		{"SNL660", true, VariantClassic, 3200, 5600},
		{"MS60B", true, VariantInfinity, 2700, 6500},
		{"RGB1200", false, VariantInfinity, 2500, 10000},
		{"CL124", false, VariantHybrid, 2500, 10000},
		{"RGB660PRO", false, VariantClassic, 3200, 5600},
		{"TotallyUnknownLight", false, VariantClassic, 3200, 5600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			min, max, cctOnly, variant := Capabilities(tt.name)
			if cctOnly != tt.wantCCTOnly || variant != tt.wantVariant || min != tt.wantMin || max != tt.wantMax {
				t.Errorf("Capabilities(%q) = (%d, %d, %v, %v), want (%d, %d, %v, %v)",
					tt.name, min, max, cctOnly, variant, tt.wantMin, tt.wantMax, tt.wantCCTOnly, tt.wantVariant)
			}
		})
	}
}

func TestIsNeewerName(t *testing.T) {
	for name, want := range map[string]bool{
		"NEEWER-RGB660": true,
		"NW-20220016":   true,
		"SL90":          true,
		"nwr something": true,
		"LEDBLE-7F":     false,
		"":              false,
	} {
		if got := IsNeewerName(name); got != want {
			t.Errorf("IsNeewerName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSupportsStatusQuery(t *testing.T) {
	tests := []struct {
		name     string
		light    Descriptor
		expected bool
	}{
		{"override_true_on_unsupported_model", Descriptor{Name: "MS60B", StatusQuery: boolPtr(true)}, true},
		{"override_false_on_supported_model", Descriptor{Name: "RGB660", StatusQuery: boolPtr(false)}, false},
		{"inferred_supported", Descriptor{Name: "SNL660"}, true},
		{"inferred_unsupported", Descriptor{Name: "CB60 RGB"}, false},
		{"tl120_is_unsupported_despite_tl60_prefix_rule", Descriptor{Name: "TL120C"}, false},
		{"empty_name", Descriptor{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.light.SupportsStatusQuery(); got != tt.expected {
				t.Errorf("SupportsStatusQuery() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSupportsExtendedScene(t *testing.T) {
	tests := []struct {
		name     string
		light    Descriptor
		expected bool
	}{
		{"infinity_rgb", Descriptor{Name: "RGB1200", Variant: VariantInfinity}, true},
		{"hybrid_rgb", Descriptor{Name: "CL124", Variant: VariantHybrid}, true},
		{"classic", Descriptor{Name: "RGB660", Variant: VariantClassic}, false},
		{"infinity_cct_only", Descriptor{Name: "MS60B", Variant: VariantInfinity, CCTOnly: true}, false},
		{"override_wins", Descriptor{Name: "RGB660", Variant: VariantClassic, ExtendedScene: boolPtr(true)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.light.SupportsExtendedScene(); got != tt.expected {
				t.Errorf("SupportsExtendedScene() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestInfinityMAC(t *testing.T) {
	d := Descriptor{MAC: "AA:BB:CC:DD:EE:FF"}
	mac, err := d.InfinityMAC()
	if err != nil || mac != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("InfinityMAC() = %q, %v", mac, err)
	}

	d.HardwareMAC = "11:22:33:44:55:66"
	mac, _ = d.InfinityMAC()
	if mac != "11:22:33:44:55:66" {
		t.Fatalf("InfinityMAC() with override = %q", mac)
	}

	uuidStyle := Descriptor{MAC: "7C6B7E2A-DEAD-BEEF-0000-112233445566"}
	if _, err := uuidStyle.InfinityMAC(); err == nil {
		t.Fatal("InfinityMAC() on UUID-style address should fail")
	}
}

func TestParseVariant(t *testing.T) {
	for input, want := range map[string]Variant{
		"classic": VariantClassic, "infinity": VariantInfinity, "hybrid": VariantHybrid,
		"0": VariantClassic, "1": VariantInfinity, "2": VariantHybrid, "": VariantClassic,
	} {
		got, err := ParseVariant(input)
		if err != nil || got != want {
			t.Errorf("ParseVariant(%q) = %v, %v; want %v", input, got, err, want)
		}
	}
	if _, err := ParseVariant("quantum"); err == nil {
		t.Error("ParseVariant should reject unknown variants")
	}
}

package light

// Model knowledge base extracted from Neewer firmware behavior. Newer lights
// advertise an opaque project number instead of a model name; nameNeedles maps
// the needle embedded in the advertised name to the real model.
var nameNeedles = []struct {
	needle string
	model  string
}{
	{"20200015", "RGB1"},
	{"20200037", "SL90"},
	{"20200049", "RGB1200"},
	{"20210006", "Apollo 150D"},
	{"20210007", "RGB C80"},
	{"20210012", "CB60 RGB"},
	{"20210018", "BH-30S RGB"},
	{"20210034", "MS60B"},
	{"20210035", "MS60C"},
	{"20210036", "TL60 RGB"},
	{"20210037", "CB200B"},
	{"20220014", "CB60B"},
	{"20220016", "PL60C"},
	{"20220035", "MS150B"},
	{"20220041", "AS600B"},
	{"20220043", "FS150B"},
	{"20220046", "RP19C"},
	{"20220051", "CB100C"},
	{"20220055", "CB300B"},
	{"20220057", "SL90 Pro"},
	{"20230021", "BH-30S RGB"},
	{"20230022", "HS60B"},
	{"20230025", "RGB1200"},
	{"20230031", "TL120C"},
	{"20230050", "FS230 5600K"},
	{"20230051", "FS230B"},
	{"20230052", "FS150 5600K"},
	{"20230064", "TL60 RGB"},
	{"20230080", "MS60C"},
	{"20230092", "RGB1200"},
	{"20230108", "HB80C"},
}

// Spec describes what a light model can do on the wire.
type Spec struct {
	Model   string
	TempMin int // Kelvin
	TempMax int // Kelvin
	CCTOnly bool
	Variant Variant
}

// Later entries win when more than one model name matches, so keep more
// specific names below their generic prefixes.
var masterSpecs = []Spec{
	{"Apollo", 5600, 5600, true, VariantClassic},
	{"BH-30S RGB", 2500, 10000, false, VariantInfinity},
	{"CB60 RGB", 2500, 6500, false, VariantInfinity},
	{"CL124", 2500, 10000, false, VariantHybrid},
	{"GL1", 2900, 7000, true, VariantClassic},
	{"GL1C", 2900, 7000, false, VariantInfinity},
	{"HB80C", 2500, 7500, false, VariantInfinity},
	{"MS60B", 2700, 6500, true, VariantInfinity},
	{"NL140", 3200, 5600, true, VariantClassic},
	{"RGB C80", 2500, 10000, false, VariantInfinity},
	{"RGB CB60", 2500, 10000, false, VariantInfinity},
	{"RGB1", 3200, 5600, false, VariantInfinity},
	{"RGB1000", 2500, 10000, false, VariantInfinity},
	{"RGB1200", 2500, 10000, false, VariantInfinity},
	{"RGB140", 2500, 10000, false, VariantInfinity},
	{"RGB168", 2500, 8500, false, VariantHybrid},
	{"RGB176", 3200, 5600, false, VariantClassic},
	{"RGB176 A1", 2500, 10000, false, VariantClassic},
	{"RGB18", 3200, 5600, false, VariantClassic},
	{"RGB190", 3200, 5600, false, VariantClassic},
	{"RGB450", 3200, 5600, false, VariantClassic},
	{"RGB480", 3200, 5600, false, VariantClassic},
	{"RGB512", 2500, 10000, false, VariantInfinity},
	{"RGB530", 3200, 5600, false, VariantClassic},
	{"RGB530PRO", 3200, 5600, false, VariantClassic},
	{"RGB650", 3200, 5600, false, VariantClassic},
	{"RGB660", 3200, 5600, false, VariantClassic},
	{"RGB660PRO", 3200, 5600, false, VariantClassic},
	{"RGB800", 2500, 10000, false, VariantInfinity},
	{"RGB960", 3200, 5600, false, VariantClassic},
	{"RGB-P200", 3200, 5600, false, VariantClassic},
	{"RGB-P280", 3200, 5600, false, VariantClassic},
	{"SL70", 3200, 8500, false, VariantClassic},
	{"SL80", 3200, 8500, false, VariantClassic},
	{"SL90", 2500, 10000, false, VariantInfinity},
	{"SL90 Pro", 2500, 10000, false, VariantInfinity},
	{"SNL1320", 3200, 5600, true, VariantClassic},
	{"SNL1920", 3200, 5600, true, VariantClassic},
	{"SNL480", 3200, 5600, true, VariantClassic},
	{"SNL530", 3200, 5600, true, VariantClassic},
	{"SNL660", 3200, 5600, true, VariantClassic},
	{"SNL960", 3200, 5600, true, VariantClassic},
	{"SRP16", 3200, 5600, true, VariantClassic},
	{"SRP18", 3200, 5600, true, VariantClassic},
	{"TL60", 2500, 10000, false, VariantInfinity},
	{"WRP18", 3200, 5600, true, VariantClassic},
	{"ZK-RY", 5600, 5600, false, VariantClassic},
	{"ZRP16", 3200, 5600, true, VariantClassic},
}

// acceptedNamePrefixes filters BLE advertisements down to Neewer fixtures.
var acceptedNamePrefixes = []string{"NEEWER", "NW-", "SL", "NWR"}

// Model prefixes for which the notify-based status query protocol is known to
// misbehave or be absent. Overridable per light via supports_status_query.
var statusUnsupportedPrefixes = []string{
	"FS", "CB", "MS", "AS", "APOLLO", "HB", "HS", "TL120", "PL",
}

var statusSupportedPrefixes = []string{
	"SL", "SNL", "RGB", "GL", "NL", "SRP", "WRP", "ZRP", "CL124", "ZK-RY", "TL60",
}

package tuya

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// DomainTable is a device's fully parsed capability map: every function and
// status code resolved to its value domain. Immutable once built.
type DomainTable struct {
	specs map[string]FunctionSpec
}

// Lookup returns the parsed domain for a code. The second return is false
// when the device's specification never mentioned the code.
func (t *DomainTable) Lookup(code string) (FunctionSpec, bool) {
	s, ok := t.specs[code]
	return s, ok
}

// Codes returns the set of codes the table knows about.
func (t *DomainTable) Codes() []string {
	out := make([]string, 0, len(t.specs))
	for c := range t.specs {
		out = append(out, c)
	}
	return out
}

// rawDomain is the wire shape of a code's "values" JSON. Integer domains
// carry min/max/scale/step, enum domains carry range, colour domains carry
// three nested integer sub-domains.
type rawDomain struct {
	Min   *float64      `json:"min"`
	Max   *float64      `json:"max"`
	Scale float64       `json:"scale"`
	Step  float64       `json:"step"`
	Unit  string        `json:"unit"`
	Range []string      `json:"range"`
	H     *rawSubDomain `json:"h"`
	S     *rawSubDomain `json:"s"`
	V     *rawSubDomain `json:"v"`
}

type rawSubDomain struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Scale float64 `json:"scale"`
	Step  float64 `json:"step"`
}

// Catalog caches parsed DomainTables keyed by the serialized specification,
// so devices of the same model share one cached table. Concurrent lookups
// for the same key perform exactly one parse.
//
// Thread Safety: all methods are safe for concurrent use.
type Catalog struct {
	mu      sync.Mutex
	entries map[string]*catalogEntry
	log     Logger
}

// catalogEntry carries a once-guard so racing callers block on the first
// parse instead of duplicating it.
type catalogEntry struct {
	once  sync.Once
	table *DomainTable
}

// NewCatalog creates an empty capability catalog.
//
// Parameters:
//   - log: logger for parse warnings; nil uses a no-op logger
//
// Returns:
//   - *Catalog: ready-to-use catalog
func NewCatalog(log Logger) *Catalog {
	if log == nil {
		log = noopLogger{}
	}
	return &Catalog{
		entries: make(map[string]*catalogEntry),
		log:     log,
	}
}

// Domain resolves the value domain for a code on a device. Resolution order:
// the device's own parsed specification, then the built-in default table.
// The second return is false when neither source knows the code, which
// callers must treat as "capability unsupported on this device".
func (c *Catalog) Domain(dev *Device, code string) (FunctionSpec, bool) {
	if dev != nil && !dev.Spec.Empty() {
		if spec, ok := c.Table(dev.Spec).Lookup(code); ok {
			return spec, true
		}
	}
	spec, ok := defaultDomains[code]
	return spec, ok
}

// Table returns the parsed DomainTable for a specification, computing and
// caching it on first use.
func (c *Catalog) Table(spec Specification) *DomainTable {
	key := specKey(spec)

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &catalogEntry{}
		c.entries[key] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.table = c.parse(spec)
	})
	return entry.table
}

// Invalidate drops every cached table. Called when a full device-list
// refresh replaces all specifications wholesale.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]*catalogEntry)
	c.mu.Unlock()
}

// Size returns the number of cached tables.
func (c *Catalog) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// specKey serializes a specification deterministically so two devices with
// identical capability shapes resolve to the same cache entry.
func specKey(spec Specification) string {
	var b strings.Builder
	b.WriteString(spec.Category)
	b.WriteString("|f:")
	for _, cs := range spec.Functions {
		b.WriteString(cs.Code)
		b.WriteByte('=')
		b.WriteString(cs.Type)
		b.WriteByte(':')
		b.WriteString(cs.Values)
		b.WriteByte(';')
	}
	b.WriteString("|s:")
	for _, cs := range spec.Status {
		b.WriteString(cs.Code)
		b.WriteByte('=')
		b.WriteString(cs.Type)
		b.WriteByte(':')
		b.WriteString(cs.Values)
		b.WriteByte(';')
	}
	return b.String()
}

// parse builds a DomainTable from the raw specification. Function entries
// take precedence over status entries for the same code, matching how
// commands are validated against the function map. Malformed value JSON is
// logged and the code kept with an unknown kind so siblings still parse.
func (c *Catalog) parse(spec Specification) *DomainTable {
	specs := make(map[string]FunctionSpec, len(spec.Functions)+len(spec.Status))

	for _, cs := range spec.Status {
		specs[cs.Code] = c.parseCode(cs)
	}
	for _, cs := range spec.Functions {
		specs[cs.Code] = c.parseCode(cs)
	}

	return &DomainTable{specs: specs}
}

func (c *Catalog) parseCode(cs CodeSpec) FunctionSpec {
	out := FunctionSpec{Code: cs.Code, Kind: kindFromType(cs.Type)}
	if cs.Values == "" || cs.Values == "{}" {
		return out
	}

	var raw rawDomain
	if err := json.Unmarshal([]byte(cs.Values), &raw); err != nil {
		c.log.Warn("capability values unparseable",
			"code", cs.Code, "type", cs.Type, "error", err)
		return out
	}

	switch out.Kind {
	case KindInteger:
		out.Integer = integerFromRaw(raw)
	case KindEnum:
		out.Enum = EnumDomain{Range: raw.Range}
	case KindColour:
		out.Colour = colourFromRaw(raw, cs.Code)
	}
	return out
}

func kindFromType(typ string) ValueKind {
	switch strings.ToLower(typ) {
	case "integer", "value":
		return KindInteger
	case "enum":
		return KindEnum
	case "boolean", "bool":
		return KindBoolean
	case "string":
		return KindString
	case "json", "colour", "color":
		return KindColour
	default:
		return KindUnknown
	}
}

func integerFromRaw(raw rawDomain) IntegerDomain {
	d := IntegerDomain{Scale: raw.Scale, Step: raw.Step, Unit: raw.Unit}
	if raw.Min != nil {
		d.Min = *raw.Min
	}
	if raw.Max != nil {
		d.Max = *raw.Max
	}
	return d
}

func colourFromRaw(raw rawDomain, code string) ColourDomain {
	d := defaultColourDomain(code)
	if raw.H != nil {
		d.H = IntegerDomain{Min: raw.H.Min, Max: raw.H.Max, Scale: raw.H.Scale, Step: raw.H.Step}
	}
	if raw.S != nil {
		d.S = IntegerDomain{Min: raw.S.Min, Max: raw.S.Max, Scale: raw.S.Scale, Step: raw.S.Step}
	}
	if raw.V != nil {
		d.V = IntegerDomain{Min: raw.V.Min, Max: raw.V.Max, Scale: raw.V.Scale, Step: raw.V.Step}
	}
	return d
}

// defaultDomains covers devices whose specification omits a code the
// firmware nonetheless reports. Ranges follow the vendor's documented
// v1/v2 datapoint conventions.
var defaultDomains = map[string]FunctionSpec{
	"bright_value": {
		Code: "bright_value", Kind: KindInteger,
		Integer: IntegerDomain{Min: 25, Max: 255},
	},
	"bright_value_v2": {
		Code: "bright_value_v2", Kind: KindInteger,
		Integer: IntegerDomain{Min: 10, Max: 1000},
	},
	"bright_value_1": {
		Code: "bright_value_1", Kind: KindInteger,
		Integer: IntegerDomain{Min: 25, Max: 255},
	},
	"temp_value": {
		Code: "temp_value", Kind: KindInteger,
		Integer: IntegerDomain{Min: 0, Max: 255},
	},
	"temp_value_v2": {
		Code: "temp_value_v2", Kind: KindInteger,
		Integer: IntegerDomain{Min: 0, Max: 1000},
	},
	"colour_data": {
		Code: "colour_data", Kind: KindColour,
		Colour: ColourDomain{
			H: IntegerDomain{Min: 1, Max: 360},
			S: IntegerDomain{Min: 1, Max: 255},
			V: IntegerDomain{Min: 1, Max: 255},
		},
	},
	"colour_data_v2": {
		Code: "colour_data_v2", Kind: KindColour,
		Colour: ColourDomain{
			H: IntegerDomain{Min: 1, Max: 360},
			S: IntegerDomain{Min: 1, Max: 1000},
			V: IntegerDomain{Min: 1, Max: 1000},
		},
	},
}

func defaultColourDomain(code string) ColourDomain {
	if spec, ok := defaultDomains[code]; ok && spec.Kind == KindColour {
		return spec.Colour
	}
	return defaultDomains["colour_data"].Colour
}

// DescribeDomain renders a domain compactly for debug logs.
func DescribeDomain(spec FunctionSpec) string {
	switch spec.Kind {
	case KindInteger:
		return fmt.Sprintf("integer[%g..%g scale=%g]", spec.Integer.Min, spec.Integer.Max, spec.Integer.Scale)
	case KindEnum:
		return fmt.Sprintf("enum%v", spec.Enum.Range)
	case KindColour:
		return fmt.Sprintf("colour[h:%g..%g s:%g..%g v:%g..%g]",
			spec.Colour.H.Min, spec.Colour.H.Max,
			spec.Colour.S.Min, spec.Colour.S.Max,
			spec.Colour.V.Min, spec.Colour.V.Max)
	default:
		return spec.Kind.String()
	}
}

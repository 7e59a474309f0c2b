package shard

const (
	// DefaultIDWidth is the default digit width reserved for local ids
	// inside a global id. A width of 13 leaves headroom for
	// sequence-generated keys while keeping shard ids readable in the
	// high digits.
	DefaultIDWidth = 13

	// MaxIDWidth is the widest usable local id width. 10^19 no longer
	// fits in an int64, so wider moduli would wrap.
	MaxIDWidth = 18
)

// Translator converts primary keys between their shard-local and globally
// unique forms. A global id packs the home shard id into the high digits:
//
//	global = shardID * 10^width + local
//
// Translation is pure over the registry state; no call mutates anything.
// The configured width must exceed the widest local id ever issued or
// decoding becomes ambiguous.
type Translator struct {
	registry *Registry
	width    int
	modulus  int64
}

// NewTranslator creates a translator for the given registry and digit
// width. A width <= 0 selects DefaultIDWidth; a width above MaxIDWidth
// is clamped to MaxIDWidth so the modulus stays a power of ten inside
// int64 range.
func NewTranslator(registry *Registry, width int) *Translator {
	if width <= 0 {
		width = DefaultIDWidth
	}
	if width > MaxIDWidth {
		width = MaxIDWidth
	}
	modulus := int64(1)
	for i := 0; i < width; i++ {
		modulus *= 10
	}
	return &Translator{registry: registry, width: width, modulus: modulus}
}

// Width returns the configured local id digit width.
func (t *Translator) Width() int {
	return t.width
}

// IsGlobal reports whether id carries an encoded shard id.
func (t *Translator) IsGlobal(id int64) bool {
	return id >= t.modulus
}

// GlobalID encodes a local id and its home shard into a global id.
// Returns an InvalidLocalIDError if the local id is not positive or does
// not fit in the configured width.
func (t *Translator) GlobalID(local int64, home ID) (int64, error) {
	if local <= 0 || local >= t.modulus {
		return 0, &InvalidLocalIDError{LocalID: local, Width: t.width}
	}
	return int64(home)*t.modulus + local, nil
}

// LocalID decodes a global id into its home shard and local id. Returns
// a MalformedGlobalIDError if the encoded shard is not registered; an
// unresolvable id is surfaced loudly, never routed to a default shard.
func (t *Translator) LocalID(global int64) (*Shard, int64, error) {
	home := ID(global / t.modulus)
	local := global % t.modulus

	s, err := t.registry.Lookup(home)
	if err != nil {
		return nil, 0, &MalformedGlobalIDError{GlobalID: global, ShardID: home}
	}
	return s, local, nil
}

// Resolve interprets a raw key read on the source shard and returns the
// home shard and local id it refers to. A value below the width threshold
// is local to the source shard; anything else is decoded as a global id.
func (t *Translator) Resolve(id int64, source ID) (*Shard, int64, error) {
	if t.IsGlobal(id) {
		return t.LocalID(id)
	}
	if id <= 0 {
		return nil, 0, &InvalidLocalIDError{LocalID: id, Width: t.width}
	}
	s, err := t.registry.Lookup(source)
	if err != nil {
		return nil, 0, err
	}
	return s, id, nil
}

// RelativeID converts a key read on the source shard into the form that
// must be written on the target shard: the bare local id when the target
// is the record's home shard, the global id otherwise.
//
// RelativeID is idempotent: applying it to an already-relative value and
// resolving the result yields the same (shard, local id) pair as a single
// application.
func (t *Translator) RelativeID(id int64, source, target ID) (int64, error) {
	home, local, err := t.Resolve(id, source)
	if err != nil {
		return 0, err
	}
	if home.ID == target {
		return local, nil
	}
	return t.GlobalID(local, home.ID)
}

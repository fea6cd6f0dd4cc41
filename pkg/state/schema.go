package state

// Field declares how one named state field behaves under merge.
type Field struct {
	// Reducer reconciles existing and incoming values. Required.
	Reducer Reducer

	// Default supplies the initial value when a run starts without one.
	Default func() any
}

// Schema is the declared shape of a state container: each field name bound
// to its reducer. Fields absent from the schema use KeepLatest.
type Schema struct {
	fields map[string]Field
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{fields: make(map[string]Field)}
}

// AddField declares a field. Redeclaring a name replaces the previous entry.
func (s *Schema) AddField(name string, f Field) *Schema {
	if f.Reducer == nil {
		f.Reducer = KeepLatest
	}
	s.fields[name] = f
	return s
}

// Init builds the starting state for a run: schema defaults first, then the
// caller's initial values on top.
func (s *Schema) Init(initial State) State {
	out := make(State, len(s.fields)+len(initial))
	for name, f := range s.fields {
		if f.Default != nil {
			out[name] = f.Default()
		}
	}
	for k, v := range initial {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// Merge applies a partial update to a base state, key by key, through each
// key's declared reducer. Keys absent from the partial are untouched. The
// result is a new container; neither operand is mutated.
func (s *Schema) Merge(base, partial State) State {
	out := make(State, len(base)+len(partial))
	for k, v := range base {
		out[k] = v
	}
	for k, incoming := range partial {
		reducer := KeepLatest
		if f, ok := s.fields[k]; ok {
			reducer = f.Reducer
		}
		out[k] = reducer(base[k], incoming)
	}
	return out
}

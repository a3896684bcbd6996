// Package entity normalizes raw indexed entity records into a single
// model-access API. The indexer delivers the same logical model in two
// physical shapes: a legacy flat key ("<namespace>-<Model>") and a nested
// models object. All shape branching lives here; nothing outside this
// package inspects raw record layout.
package entity

// Model is one raw model payload inside an entity record.
type Model = map[string]any

// Entity is one raw indexed entity record. Data holds the record as
// delivered: flat model keys, a nested "models" object, or both.
type Entity struct {
	ID   string
	Data map[string]any
}

// New creates an empty entity record.
func New(id string) *Entity {
	return &Entity{ID: id, Data: map[string]any{}}
}

// Model resolves a model by namespace and name, preferring the flat-key
// encoding and falling back to the nested one.
func (e *Entity) Model(namespace, name string) (Model, bool) {
	if e == nil || e.Data == nil {
		return nil, false
	}
	if m, ok := e.Data[namespace+"-"+name].(map[string]any); ok {
		return m, true
	}
	models, ok := e.Data["models"].(map[string]any)
	if !ok {
		return nil, false
	}
	ns, ok := models[namespace].(map[string]any)
	if !ok {
		return nil, false
	}
	m, ok := ns[name].(map[string]any)
	if !ok {
		return nil, false
	}
	return m, true
}

// EnsureNestedModel returns a mutable reference to the nested model,
// creating the nested structure if absent. A flat-key copy of the same model
// is promoted into the nested slot and removed, since Model prefers the flat
// key and a stale flat copy would shadow every nested write. Optimistic
// writes go through this so speculative state is structurally compatible
// with what the indexer will later deliver. The receiver is mutated in place
// and is expected to be a copy-on-write draft, never a shared record.
func (e *Entity) EnsureNestedModel(namespace, name string, factory func() Model) Model {
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	flatKey := namespace + "-" + name
	flat, _ := e.Data[flatKey].(map[string]any)
	models, ok := e.Data["models"].(map[string]any)
	if !ok {
		models = map[string]any{}
		e.Data["models"] = models
	}
	ns, ok := models[namespace].(map[string]any)
	if !ok {
		ns = map[string]any{}
		models[namespace] = ns
	}
	m, ok := ns[name].(map[string]any)
	if !ok {
		m = flat
		if m == nil && factory != nil {
			m = factory()
		}
		if m == nil {
			m = map[string]any{}
		}
		ns[name] = m
	}
	delete(e.Data, flatKey)
	return m
}

// Clone returns a deep copy of the entity, safe to mutate independently.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	return &Entity{ID: e.ID, Data: cloneMap(e.Data)}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

package formengine

// PathSeparator joins a parent field name and a nested field name in
// flattened keys.
const PathSeparator = "."

// Flatten collapses nested records into a single-level record. Nested keys
// are prefixed with their full parent path ("Medico.Especialidad.nombre").
// Scalars and arrays pass through unchanged. When a flattened key collides
// with an existing key, the later write wins and keeps the position of the
// first occurrence.
func Flatten(r *Record) *Record {
	out := NewRecord()
	flattenInto(out, r, "")
	return out
}

func flattenInto(out, r *Record, prefix string) {
	for _, k := range r.Keys() {
		v, _ := r.Get(k)
		if nested, ok := v.(*Record); ok && nested != nil {
			flattenInto(out, nested, prefix+k+PathSeparator)
			continue
		}
		out.Set(prefix+k, v)
	}
}

package manifest

import "encoding/json"

// Canonical re-serializes v as JSON with object keys in sorted order,
// matching the original's json.dumps(manifest, sort_keys=True) (used by
// v2_2/oci_compat_.py and the schema1 signing payload). encoding/json
// already sorts map[string]any keys on Marshal, so round-tripping through
// interface{} is sufficient without a hand-rolled key-sorting encoder.
func Canonical(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

package tokens

import (
	"encoding/json"
	"maps"
)

// Bag maps token kinds to their current values. Absent kinds are not keys;
// an empty string is never stored.
type Bag map[Kind]string

// Get returns the value for kind and whether it is present.
func (b Bag) Get(kind Kind) (string, bool) {
	value, ok := b[kind]
	return value, ok && value != ""
}

// Merge returns a new Bag with the values of b overridden by those of other.
// Kinds missing from other keep their value from b.
func (b Bag) Merge(other Bag) Bag {
	merged := make(Bag, len(b)+len(other))
	for kind, value := range b {
		if value != "" {
			merged[kind] = value
		}
	}
	for kind, value := range other {
		if value != "" {
			merged[kind] = value
		}
	}
	return merged
}

// Clone returns a copy that can be mutated independently.
func (b Bag) Clone() Bag {
	if b == nil {
		return Bag{}
	}
	return maps.Clone(b)
}

// Equal reports whether both bags hold the same values.
func (b Bag) Equal(other Bag) bool {
	return maps.Equal(b, other)
}

// Marshal serializes the bag in its durable JSON form, e.g. {"accessToken":"..."}.
func (b Bag) Marshal() (string, error) {
	if b == nil {
		b = Bag{}
	}
	data, err := json.Marshal(map[Kind]string(b))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseBag decodes the durable JSON form. Unknown keys, non-string values and
// empty strings are dropped rather than rejected.
func ParseBag(raw string) (Bag, error) {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, err
	}

	bag := Bag{}
	for _, kind := range Kinds {
		if value, ok := decoded[string(kind)].(string); ok && value != "" {
			bag[kind] = value
		}
	}
	return bag, nil
}

package config

import "fmt"

// Setting is one non-secret key as shown by "config show".
type Setting struct {
	Key   string
	Env   string
	Value string
}

// Settings lists every non-secret key with its effective value.
func Settings(cfg Config) []Setting {
	out := make([]Setting, 0, len(specs))
	for _, s := range specs {
		if !s.secret {
			out = append(out, Setting{Key: s.key, Env: s.env, Value: fmt.Sprint(s.extract(cfg))})
		}
	}
	return out
}

// Keys names the keys Set accepts.
func Keys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}

// Set validates value against key's type and persists it to FilePath.
func Set(key, value string) error {
	return setIn(openYAMLStore(FilePath()), key, value)
}

func setIn(st Store, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return fmt.Errorf("%s is a secret; set it with the %s environment variable", key, s.env)
	}

	parsed, err := parseValue(s.typ, value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	// Durations are written as typed ("90s") so the file stays readable.
	if s.typ == kString || s.typ == kDuration {
		return st.Put(key, value)
	}
	return st.Put(key, parsed)
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

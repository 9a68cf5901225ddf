package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Entry is one key/value attribute of a credential
type Entry struct {
	Key   string
	Value string
}

// Entries is an ordered set of attributes. Order is the order the user
// entered them in; keys are unique.
type Entries []Entry

// Get returns the value stored under key
func (e Entries) Get(key string) (string, bool) {
	for _, entry := range e {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return "", false
}

// Set replaces the value of key, or appends it if absent
func (e Entries) Set(key, value string) Entries {
	for i := range e {
		if e[i].Key == key {
			e[i].Value = value
			return e
		}
	}
	return append(e, Entry{Key: key, Value: value})
}

// Remove drops key, reporting whether it was present
func (e Entries) Remove(key string) (Entries, bool) {
	for i := range e {
		if e[i].Key == key {
			return append(e[:i:i], e[i+1:]...), true
		}
	}
	return e, false
}

// Clone returns an independent copy
func (e Entries) Clone() Entries {
	if e == nil {
		return nil
	}
	return append(Entries(nil), e...)
}

// Validate checks there is at least one entry, that keys are non-empty
// and unique, and that keys and values are valid UTF-8.
func (e Entries) Validate() error {
	if len(e) == 0 {
		return fmt.Errorf("%w: at least one entry is required", ErrValidation)
	}
	seen := make(map[string]struct{}, len(e))
	for _, entry := range e {
		if entry.Key == "" {
			return fmt.Errorf("%w: entry key is empty", ErrValidation)
		}
		if !utf8.ValidString(entry.Key) || !utf8.ValidString(entry.Value) {
			return fmt.Errorf("%w: entry %q is not valid UTF-8", ErrValidation, strings.ToValidUTF8(entry.Key, "?"))
		}
		if _, dup := seen[entry.Key]; dup {
			return fmt.Errorf("%w: duplicate entry key %q", ErrValidation, entry.Key)
		}
		seen[entry.Key] = struct{}{}
	}
	return nil
}

// MarshalJSON encodes entries as a JSON object, preserving order
func (e Entries) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range e {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(entry.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of strings, keeping key order and
// rejecting repeated keys.
func (e *Entries) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("entries must be a JSON object")
	}

	out := Entries{}
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("entries key must be a string")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate entries key %q", key)
		}
		seen[key] = struct{}{}

		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("entries value for %q: %w", key, err)
		}
		out = append(out, Entry{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*e = out
	return nil
}

// ParseEntry splits a "key=value" argument. The value may be empty and may
// itself contain '='.
func ParseEntry(arg string) (Entry, error) {
	key, value, ok := strings.Cut(arg, "=")
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q is not in key=value form", ErrValidation, arg)
	}
	if key == "" {
		return Entry{}, fmt.Errorf("%w: %q has an empty key", ErrValidation, arg)
	}
	return Entry{Key: key, Value: value}, nil
}

// Credential is a named set of entries. Entries are only ever held
// decrypted in memory; on disk they exist as an encrypted blob.
type Credential struct {
	ID      uint64
	Name    string
	Entries Entries
}

// Clone returns an independent copy of the credential
func (c *Credential) Clone() *Credential {
	return &Credential{ID: c.ID, Name: c.Name, Entries: c.Entries.Clone()}
}

// ValidateName rejects empty, whitespace-only and non-UTF-8 names
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is empty", ErrValidation)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: name is not valid UTF-8", ErrValidation)
	}
	return nil
}

package portdata

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Dataset maps every port of one gateway to one attribute value.
// All 64 keys are always present; an unresolved port holds nil.
// Values are first-writer-wins: once set they are never replaced.
type Dataset struct {
	Attribute Attribute
	values    [PortCount]*string
}

// NewDataset returns an all-null dataset for attr.
func NewDataset(attr Attribute) *Dataset {
	return &Dataset{Attribute: attr}
}

// Offer records value for key unless the port already has one.
// It reports whether the value was stored.
func (d *Dataset) Offer(key Key, value string) bool {
	i := key.Index()
	if i == 0 || value == "" {
		return false
	}
	if d.values[i-1] != nil {
		return false
	}
	v := value
	d.values[i-1] = &v
	return true
}

// Get returns the value for key and whether it is resolved.
func (d *Dataset) Get(key Key) (string, bool) {
	if d == nil {
		return "", false
	}
	i := key.Index()
	if i == 0 || d.values[i-1] == nil {
		return "", false
	}
	return *d.values[i-1], true
}

// Resolved counts non-null ports.
func (d *Dataset) Resolved() int {
	n := 0
	for _, v := range d.values {
		if v != nil {
			n++
		}
	}
	return n
}

// Complete reports whether every port is resolved.
func (d *Dataset) Complete() bool {
	return d.Resolved() == PortCount
}

// Unresolved lists the ports still null, in port order.
func (d *Dataset) Unresolved() []Key {
	var out []Key
	for i, v := range d.values {
		if v == nil {
			out = append(out, KeyFor(i+1))
		}
	}
	return out
}

// MarshalJSON writes a single object with A1..A64 in port order, null for unresolved ports.
func (d *Dataset) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, v := range d.values {
		fmt.Fprintf(&buf, "  %q: ", KeyFor(i+1))
		if v == nil {
			buf.WriteString("null")
		} else {
			b, err := json.Marshal(*v)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		if i < PortCount-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}")
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a port -> value object. Keys in either token order are accepted;
// unknown or out-of-range keys are ignored.
func (d *Dataset) UnmarshalJSON(data []byte) error {
	raw := map[string]*string{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.values = [PortCount]*string{}
	for k, v := range raw {
		key, err := NormalizeKey(k)
		if err != nil || v == nil {
			continue
		}
		d.Offer(key, *v)
	}
	return nil
}

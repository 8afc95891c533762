// Package permission decodes the user-access metadata reported by exiftool
// for a PDF and decides whether a permission profile is worth reporting.
package permission

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Mask is a bitset over the seven PDF user-access capabilities.
type Mask uint8

const (
	Assemble Mask = 1 << iota
	Annotate
	Copy
	Extract
	FillForms
	Modify
	Print
)

var capabilityNames = []struct {
	bit  Mask
	name string
}{
	{Assemble, "assemble"},
	{Annotate, "annotate"},
	{Copy, "copy"},
	{Extract, "extract"},
	{FillForms, "fill forms"},
	{Modify, "modify"},
	{Print, "print"},
}

// Has reports whether every bit of c is set.
func (m Mask) Has(c Mask) bool {
	return m&c == c
}

func (m Mask) String() string {
	var parts []string
	for _, c := range capabilityNames {
		if m.Has(c.bit) {
			parts = append(parts, c.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// ParseUserAccess turns exiftool's comma-separated UserAccess value into a
// Mask. Names are matched case-insensitively; unknown names are ignored.
func ParseUserAccess(value string) Mask {
	var mask Mask
	if value == "" {
		return mask
	}
	for _, item := range strings.Split(value, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		for _, c := range capabilityNames {
			if c.name == item {
				mask |= c.bit
				break
			}
		}
	}
	return mask
}

// Class is the permission label derived from the assemble and modify bits.
type Class string

const (
	AssembleOffModifyOff Class = "AssembleOFF_ModifyOFF"
	AssembleOnModifyOff  Class = "AssembleON_ModifyOFF"
	AssembleOnModifyOn   Class = "AssembleON_ModifyON"
	AssembleOffModifyOn  Class = "AssembleOFF_ModifyON"
)

// Classes lists every label in report order.
var Classes = []Class{AssembleOffModifyOff, AssembleOnModifyOff, AssembleOnModifyOn, AssembleOffModifyOn}

// ClassOf only looks at the assemble and modify bits; the other five bits
// never change the label.
func ClassOf(m Mask) Class {
	assemble := m.Has(Assemble)
	modify := m.Has(Modify)
	switch {
	case assemble && modify:
		return AssembleOnModifyOn
	case assemble:
		return AssembleOnModifyOff
	case modify:
		return AssembleOffModifyOn
	default:
		return AssembleOffModifyOff
	}
}

// IsInterestingUserAccess is true unless both assemble and modify are
// granted.
func IsInterestingUserAccess(m Mask) bool {
	if !m.Has(Assemble) {
		return true
	}
	if !m.Has(Modify) {
		return true
	}
	return false
}

// Record is what exiftool told us about one file.
type Record struct {
	Encrypted         bool
	UserAccessPresent bool
	Access            Mask
}

// Observed reports whether any permission metadata was present at all.
func (r Record) Observed() bool {
	return r.Encrypted || r.UserAccessPresent
}

// Reportable requires observed metadata, so a file without any metadata is
// never reported even though its zero mask looks interesting.
func (r Record) Reportable() bool {
	return r.Observed() && IsInterestingUserAccess(r.Access)
}

func (r Record) Class() Class {
	return ClassOf(r.Access)
}

// ErrNoData is returned when exiftool printed an empty array.
var ErrNoData = errors.New("no data returned by exiftool")

// ParseExiftoolJSON reads the output of `exiftool -j`. Only the first
// element is considered. Encryption presence means encrypted; UserAccess
// presence sets the access flag and is decoded into the mask.
func ParseExiftoolJSON(data []byte) (Record, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return Record{}, fmt.Errorf("can't decode exiftool output: %w", err)
	}
	if len(items) == 0 {
		return Record{}, ErrNoData
	}
	var rec Record
	first := items[0]
	if _, ok := first["Encryption"]; ok {
		rec.Encrypted = true
	}
	if raw, ok := first["UserAccess"]; ok {
		rec.UserAccessPresent = true
		var value string
		if err := json.Unmarshal(raw, &value); err == nil {
			rec.Access = ParseUserAccess(value)
		}
	}
	return rec, nil
}

// BoolString renders flags the way the permission table stores them.
func BoolString(flag bool) string {
	if flag {
		return "True"
	}
	return "False"
}

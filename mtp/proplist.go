package mtp

import (
	"bytes"
	"fmt"
	"io"
)

// PropValue is one decoded object-property value. DataType holds the
// wire DTC tag; the union fields are filled according to it.
type PropValue struct {
	DataType uint16
	Uint     uint64
	Int      int64
	Str      string
	Raw      []byte
}

// PropListEntry is one (object, property, value) triple from a bulk
// property listing.
type PropListEntry struct {
	Handle uint32
	Code   uint16
	Value  PropValue
}

// ValueDecoder consumes one property value of the tagged type.
// DecodePropValue keeps the value, SkipPropValue discards it.
type ValueDecoder func(r *bytes.Reader, dtc uint16) (PropValue, error)

func intWidth(dtc uint16) int {
	switch dtc {
	case DTC_INT8, DTC_UINT8:
		return 1
	case DTC_INT16, DTC_UINT16:
		return 2
	case DTC_INT32, DTC_UINT32:
		return 4
	case DTC_INT64, DTC_UINT64:
		return 8
	case DTC_INT128, DTC_UINT128:
		return 16
	}
	return 0
}

func readLE(r *bytes.Reader, width int) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:width]); err != nil {
		return 0, MalformedError("mtp: property value truncated")
	}
	var v uint64
	for i := width - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// DecodePropValue keeps integer, string and array values.
func DecodePropValue(r *bytes.Reader, dtc uint16) (PropValue, error) {
	v := PropValue{DataType: dtc}
	switch {
	case dtc == DTC_STR:
		s, err := decodeStr(r)
		if err != nil {
			return v, err
		}
		v.Str = s
	case dtc == DTC_INT128 || dtc == DTC_UINT128:
		raw := make([]byte, 16)
		if _, err := io.ReadFull(r, raw); err != nil {
			return v, MalformedError("mtp: 128-bit property value truncated")
		}
		v.Raw = raw
	case dtc&DTC_ARRAY_MASK != 0:
		elem := dtc &^ DTC_ARRAY_MASK
		width := intWidth(elem)
		if width == 0 {
			return v, MalformedError(fmt.Sprintf(
				"mtp: unknown array element type %#x", elem))
		}
		var count uint32
		cnt, err := readLE(r, 4)
		if err != nil {
			return v, err
		}
		count = uint32(cnt)
		if int64(count)*int64(width) > int64(r.Len()) {
			return v, MalformedError(fmt.Sprintf(
				"mtp: array of %d elements exceeds remaining data", count))
		}
		raw := make([]byte, int(count)*width)
		if _, err := io.ReadFull(r, raw); err != nil {
			return v, MalformedError("mtp: array property value truncated")
		}
		v.Raw = raw
	default:
		width := intWidth(dtc)
		if width == 0 {
			return v, MalformedError(fmt.Sprintf(
				"mtp: unknown data type tag %#x in property list", dtc))
		}
		u, err := readLE(r, width)
		if err != nil {
			return v, err
		}
		v.Uint = u
		// Sign-extend for the signed tags.
		switch dtc {
		case DTC_INT8:
			v.Int = int64(int8(u))
		case DTC_INT16:
			v.Int = int64(int16(u))
		case DTC_INT32:
			v.Int = int64(int32(u))
		case DTC_INT64:
			v.Int = int64(u)
		default:
			v.Int = int64(u)
		}
	}
	return v, nil
}

// SkipPropValue advances past a value, keeping only its type tag.
func SkipPropValue(r *bytes.Reader, dtc uint16) (PropValue, error) {
	v, err := DecodePropValue(r, dtc)
	if err != nil {
		return v, err
	}
	return PropValue{DataType: dtc}, nil
}

// ParseObjectPropList walks a GetObjPropList reply: a u32 element
// count followed by (handle u32, property u16, type u16, value)
// tuples. want filters on the requested property code; OPC_All accepts
// anything. Tuples carrying a different property than requested are a
// known device quirk: in lenient mode they are counted, handed to
// visit and otherwise ignored; in strict mode parsing fails. The
// element count is advisory, some devices truncate the list, so
// parsing also stops cleanly at end of data between tuples.
func ParseObjectPropList(data []byte, want uint32, strict bool,
	decode ValueDecoder, visit func(handle uint32, code uint16, v PropValue) error) (quirks int, err error) {
	r := bytes.NewReader(data)

	count, err := readLE(r, 4)
	if err != nil {
		return 0, err
	}

	for i := uint64(0); i < count; i++ {
		if r.Len() == 0 {
			// Truncated listing; tolerate.
			quirks++
			break
		}
		handle, err := readLE(r, 4)
		if err != nil {
			return quirks, err
		}
		code, err := readLE(r, 2)
		if err != nil {
			return quirks, err
		}
		dtc, err := readLE(r, 2)
		if err != nil {
			return quirks, err
		}
		v, err := decode(r, uint16(dtc))
		if err != nil {
			return quirks, err
		}

		if want != OPC_All && uint32(code) != want {
			if strict {
				return quirks, MalformedError(fmt.Sprintf(
					"mtp: property %#x in reply to a %#x listing", code, want))
			}
			quirks++
		}
		if err := visit(uint32(handle), uint16(code), v); err != nil {
			return quirks, err
		}
	}
	return quirks, nil
}

// GetObjectPropertyList fetches and parses the bulk property listing
// for parent's direct children. Duplicate (handle, property) tuples
// keep the last value. Quirks are counted on the session.
func (s *Session) GetObjectPropertyList(parent uint32, format uint16, property uint32) ([]PropListEntry, error) {
	data, err := s.GetObjectPropList(parent, format, property, 0, 1)
	if err != nil {
		return nil, err
	}

	type key struct {
		handle uint32
		code   uint16
	}
	index := map[key]int{}
	var entries []PropListEntry

	quirks, err := ParseObjectPropList(data, property, s.StrictPropLists, DecodePropValue,
		func(handle uint32, code uint16, v PropValue) error {
			k := key{handle, code}
			if i, ok := index[k]; ok {
				entries[i].Value = v
				return nil
			}
			index[k] = len(entries)
			entries = append(entries, PropListEntry{Handle: handle, Code: code, Value: v})
			return nil
		})
	if quirks > 0 {
		s.Quirks.Add(int64(quirks))
		s.log.Warningf("property list for parent 0x%x: %d quirks tolerated", parent, quirks)
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

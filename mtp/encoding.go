package mtp

import (
	"encoding/binary"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"
)

var byteOrder = binary.LittleEndian

type DecodeHints struct {
	Selector DataTypeSelector
	PropDesc bool // array counts are u16 inside property descriptors
}

// decodeStr reads a length-prefixed UCS-2LE string. The prefix byte
// counts code units including the trailing NUL; an empty string is a
// single zero byte.
func decodeStr(r io.Reader) (string, error) {
	var szSlice [1]byte
	if _, err := io.ReadFull(r, szSlice[:]); err != nil {
		return "", err
	}
	sz := int(szSlice[0])
	if sz == 0 {
		return "", nil
	}
	data := make([]byte, 2*sz)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", MalformedError(fmt.Sprintf("mtp: string of %d code units truncated", sz))
	}
	if byteOrder.Uint16(data[2*sz-2:]) != 0 {
		return "", MalformedError("mtp: string lacks NUL terminator")
	}

	utfStr := make([]byte, 4*sz)
	w := 0
	for i := 0; i < 2*(sz-1); i += 2 {
		cp := byteOrder.Uint16(data[i:])
		w += utf8.EncodeRune(utfStr[w:], rune(cp))
	}
	return string(utfStr[:w]), nil
}

func encodeStr(buf []byte, s string) ([]byte, error) {
	if s == "" {
		buf[0] = 0
		return buf[:1], nil
	}

	codepoints := 0
	buf = append(buf[:0], 0)

	var char [2]byte
	for _, r := range s {
		byteOrder.PutUint16(char[:], uint16(r))
		buf = append(buf, char[0], char[1])
		codepoints++
	}
	buf = append(buf, 0, 0)
	codepoints++
	if codepoints > 255 {
		return nil, fmt.Errorf("mtp: string too long: %d code units", codepoints)
	}

	buf[0] = byte(codepoints)
	return buf, nil
}

func encodeStrField(w io.Writer, f reflect.Value) error {
	out := make([]byte, 2*f.Len()+4)
	enc, err := encodeStr(out, f.Interface().(string))
	if err != nil {
		return err
	}
	_, err = w.Write(enc)
	return err
}

func kindSize(k reflect.Kind) int {
	switch k {
	case reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32:
		return 4
	case reflect.Int64, reflect.Uint64:
		return 8
	default:
		panic(fmt.Sprintf("unknown kind %v", k))
	}
}

var nullValue reflect.Value

func decodeArray(r io.Reader, t reflect.Type, hint DecodeHints) (reflect.Value, error) {
	var sz int
	if hint.PropDesc {
		var s uint16
		if err := binary.Read(r, byteOrder, &s); err != nil {
			return nullValue, err
		}
		sz = int(s)
	} else {
		var s uint32
		if err := binary.Read(r, byteOrder, &s); err != nil {
			return nullValue, err
		}
		sz = int(s)
	}

	kind := t.Elem().Kind()
	var ksz int
	if kind == reflect.Interface {
		val, err := InstantiateType(hint)
		if err != nil {
			return nullValue, err
		}
		ksz = kindSize(val.Kind())
	} else {
		ksz = kindSize(kind)
	}

	data := make([]byte, sz*ksz)
	if _, err := io.ReadFull(r, data); err != nil {
		return nullValue, MalformedError(
			fmt.Sprintf("mtp: array of %d elements exceeds remaining data", sz))
	}

	slice := reflect.MakeSlice(t, sz, sz)
	for i := 0; i < sz; i++ {
		from := data[i*ksz:]
		var val uint64
		switch ksz {
		case 1:
			val = uint64(from[0])
		case 2:
			val = uint64(byteOrder.Uint16(from))
		case 4:
			val = uint64(byteOrder.Uint32(from))
		case 8:
			val = byteOrder.Uint64(from)
		}

		if kind == reflect.Interface {
			slice.Index(i).Set(reflect.ValueOf(val))
		} else {
			slice.Index(i).SetUint(val)
		}
	}
	return slice, nil
}

func encodeArray(w io.Writer, val reflect.Value) error {
	sz := uint32(val.Len())
	if err := binary.Write(w, byteOrder, &sz); err != nil {
		return err
	}

	kind := val.Type().Elem().Kind()
	var ksz int
	if kind == reflect.Interface {
		ksz = kindSize(val.Index(0).Elem().Kind())
	} else {
		ksz = kindSize(kind)
	}
	data := make([]byte, int(sz)*ksz)
	for i := 0; i < int(sz); i++ {
		elt := val.Index(i)
		if kind == reflect.Interface {
			elt = elt.Elem()
		}
		to := data[i*ksz:]

		switch elt.Kind() {
		case reflect.Uint8:
			to[0] = byte(elt.Uint())
		case reflect.Uint16:
			byteOrder.PutUint16(to, uint16(elt.Uint()))
		case reflect.Uint32:
			byteOrder.PutUint32(to, uint32(elt.Uint()))
		case reflect.Uint64:
			byteOrder.PutUint64(to, elt.Uint())

		case reflect.Int8:
			to[0] = byte(elt.Int())
		case reflect.Int16:
			byteOrder.PutUint16(to, uint16(elt.Int()))
		case reflect.Int32:
			byteOrder.PutUint32(to, uint32(elt.Int()))
		case reflect.Int64:
			byteOrder.PutUint64(to, uint64(elt.Int()))
		default:
			panic(fmt.Sprintf("unimplemented: encode for kind %v", elt.Kind()))
		}
	}
	_, err := w.Write(data)
	return err
}

var timeType = reflect.TypeOf(time.Time{})

func encodeTime(w io.Writer, f reflect.Value) error {
	tptr := f.Addr().Interface().(*time.Time)
	s := ""
	if !tptr.IsZero() {
		s = tptr.Format(mtpTimeFormat)
	}

	out := make([]byte, 2*len(s)+3)
	enc, err := encodeStr(out, s)
	if err != nil {
		return err
	}
	_, err = w.Write(enc)
	return err
}

func decodeTime(r io.Reader, f reflect.Value) error {
	s, err := decodeStr(r)
	if err != nil {
		return err
	}
	t, err := parseMTPTime(s)
	if err != nil {
		return err
	}
	f.Set(reflect.ValueOf(t))
	return nil
}

func decodeField(r io.Reader, f reflect.Value, hint DecodeHints) error {
	if !f.CanAddr() {
		return fmt.Errorf("mtp: decode into unaddressable field")
	}

	if f.Type() == timeType {
		return decodeTime(r, f)
	}

	switch f.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return binary.Read(r, byteOrder, f.Addr().Interface())
	case reflect.String:
		s, err := decodeStr(r)
		if err != nil {
			return err
		}
		f.SetString(s)
	case reflect.Slice:
		sl, err := decodeArray(r, f.Type(), hint)
		if err != nil {
			return err
		}
		f.Set(sl)
	case reflect.Interface:
		val, err := InstantiateType(hint)
		if err != nil {
			return err
		}
		if err := decodeField(r, val, hint); err != nil {
			return err
		}
		f.Set(val)
	default:
		panic(fmt.Sprintf("unimplemented kind %v", f))
	}
	return nil
}

func encodeField(w io.Writer, f reflect.Value) error {
	if f.Type() == timeType {
		return encodeTime(w, f)
	}

	switch f.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return binary.Write(w, byteOrder, f.Interface())
	case reflect.String:
		return encodeStrField(w, f)
	case reflect.Slice:
		return encodeArray(w, f)
	case reflect.Interface:
		return encodeField(w, f.Elem())
	default:
		panic(fmt.Sprintf("unimplemented kind %v", f))
	}
}

// Decode reads the MTP wire representation of a tagged record into the
// struct pointed to by iface.
func Decode(r io.Reader, iface interface{}) error {
	if decoder, ok := iface.(Decoder); ok {
		return decoder.Decode(r)
	}
	return decodeWithSelector(r, iface, DecodeHints{Selector: DataTypeSelector(DTC_UNDEF)})
}

func decodeWithSelector(r io.Reader, iface interface{}, hint DecodeHints) error {
	val := reflect.ValueOf(iface)
	if val.Kind() != reflect.Ptr {
		return fmt.Errorf("mtp: need ptr argument: %T", iface)
	}
	val = val.Elem()
	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		if err := decodeField(r, val.Field(i), hint); err != nil {
			return err
		}
		if val.Field(i).Type().Name() == "DataTypeSelector" {
			hint.Selector = val.Field(i).Interface().(DataTypeSelector)
		}
	}
	return nil
}

// Encode writes the MTP wire representation of the struct pointed to
// by iface.
func Encode(w io.Writer, iface interface{}) error {
	if encoder, ok := iface.(Encoder); ok {
		return encoder.Encode(w)
	}

	val := reflect.ValueOf(iface)
	if val.Kind() != reflect.Ptr {
		return fmt.Errorf("mtp: need ptr argument: %T", iface)
	}
	val = val.Elem()
	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		if err := encodeField(w, val.Field(i)); err != nil {
			return err
		}
	}
	return nil
}

// InstantiateType returns an addressable zero value for the wire type
// named by the hint's DTC tag.
func InstantiateType(hint DecodeHints) (reflect.Value, error) {
	var val interface{}
	switch uint16(hint.Selector) {
	case DTC_INT8:
		v := int8(0)
		val = &v
	case DTC_UINT8:
		v := uint8(0)
		val = &v
	case DTC_INT16:
		v := int16(0)
		val = &v
	case DTC_UINT16:
		v := uint16(0)
		val = &v
	case DTC_INT32:
		v := int32(0)
		val = &v
	case DTC_UINT32:
		v := uint32(0)
		val = &v
	case DTC_INT64:
		v := int64(0)
		val = &v
	case DTC_UINT64:
		v := uint64(0)
		val = &v
	case DTC_INT128, DTC_UINT128:
		v := [16]byte{}
		val = &v
	case DTC_STR:
		s := ""
		val = &s
	default:
		return nullValue, MalformedError(
			fmt.Sprintf("mtp: unknown data type tag %#x", uint16(hint.Selector)))
	}

	return reflect.ValueOf(val).Elem(), nil
}

func decodePropDescForm(r io.Reader, hint DecodeHints, formFlag uint8) (DataDependentType, error) {
	switch formFlag {
	case DPFF_Range:
		f := PropDescRangeForm{}
		err := decodeWithSelector(r, &f, hint)
		return &f, err
	case DPFF_Enumeration:
		f := PropDescEnumForm{}
		err := decodeWithSelector(r, &f, hint)
		return &f, err
	}
	return nil, nil
}

func (pd *ObjectPropDesc) Decode(r io.Reader) error {
	if err := decodeWithSelector(r, &pd.ObjectPropDescFixed,
		DecodeHints{Selector: DataTypeSelector(DTC_UNDEF)}); err != nil {
		return err
	}
	form, err := decodePropDescForm(r, DecodeHints{Selector: pd.DataType, PropDesc: true}, pd.FormFlag)
	pd.Form = form
	return err
}

func (pd *DevicePropDesc) Decode(r io.Reader) error {
	if err := decodeWithSelector(r, &pd.DevicePropDescFixed,
		DecodeHints{Selector: DataTypeSelector(DTC_UNDEF)}); err != nil {
		return err
	}
	form, err := decodePropDescForm(r, DecodeHints{Selector: pd.DataType, PropDesc: true}, pd.FormFlag)
	pd.Form = form
	return err
}

func (pd *DevicePropDesc) Encode(w io.Writer) error {
	if err := Encode(w, &pd.DevicePropDescFixed); err != nil {
		return err
	}
	return Encode(w, pd.Form)
}

func (pd *ObjectPropDesc) Encode(w io.Writer) error {
	if err := Encode(w, &pd.ObjectPropDescFixed); err != nil {
		return err
	}
	return Encode(w, pd.Form)
}

// mtpTime is the wire clock format; some vendors append decorations
// that have to be stripped before parsing.
const mtpTimeFormat = "20060102T150405"
const mtpTimeFormatNumTZ = "20060102T150405-0700"

func parseMTPTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	// Samsung has trailing dots.
	s = strings.TrimRight(s, ".")
	// Jolla Sailfish has a trailing "Z".
	s = strings.TrimRight(s, "Z")

	t, err := time.Parse(mtpTimeFormat, s)
	if err != nil {
		// Nokia Lumia uses a numeric timezone.
		t, err = time.Parse(mtpTimeFormatNumTZ, s)
	}
	return t, err
}

// FormatDisplayTime rewrites a raw 15-character MTP timestamp as
// "YYYY-MM-DD hh:mm:ss" for listings. Anything else passes through.
func FormatDisplayTime(timespec string) string {
	if len(timespec) != 15 || timespec[8] != 'T' {
		return timespec
	}
	return timespec[0:4] + "-" + timespec[4:6] + "-" + timespec[6:8] + " " +
		timespec[9:11] + ":" + timespec[11:13] + ":" + timespec[13:15]
}

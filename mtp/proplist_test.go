package mtp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plString(s string) []byte {
	var buf bytes.Buffer
	if err := Encode(&buf, &TestStr{S: s}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func plTuple(handle uint32, code, dtc uint16, value []byte) []byte {
	var b []byte
	var w4 [4]byte
	var w2 [2]byte
	byteOrder.PutUint32(w4[:], handle)
	b = append(b, w4[:]...)
	byteOrder.PutUint16(w2[:], code)
	b = append(b, w2[:]...)
	byteOrder.PutUint16(w2[:], dtc)
	b = append(b, w2[:]...)
	return append(b, value...)
}

func plData(tuples ...[]byte) []byte {
	var b []byte
	var w4 [4]byte
	byteOrder.PutUint32(w4[:], uint32(len(tuples)))
	b = append(b, w4[:]...)
	for _, t := range tuples {
		b = append(b, t...)
	}
	return b
}

func u64le(v uint64) []byte {
	var w [8]byte
	byteOrder.PutUint64(w[:], v)
	return w[:]
}

func TestParsePropListFilenames(t *testing.T) {
	data := plData(
		plTuple(0x10, OPC_ObjectFileName, DTC_STR, plString("DCIM")),
		plTuple(0x11, OPC_ObjectFileName, DTC_STR, plString("Music")),
	)

	got := map[uint32]string{}
	quirks, err := ParseObjectPropList(data, OPC_ObjectFileName, false, DecodePropValue,
		func(handle uint32, code uint16, v PropValue) error {
			got[handle] = v.Str
			return nil
		})
	require.NoError(t, err)
	assert.Zero(t, quirks)
	assert.Equal(t, map[uint32]string{0x10: "DCIM", 0x11: "Music"}, got)
}

func TestParsePropListMixedTypes(t *testing.T) {
	data := plData(
		plTuple(0x10, OPC_ObjectSize, DTC_UINT64, u64le(123456)),
		plTuple(0x10, OPC_ObjectFormat, DTC_UINT16, []byte{0x01, 0x30}),
		plTuple(0x10, OPC_ObjectFileName, DTC_STR, plString("a.jpg")),
	)

	var entries []PropListEntry
	quirks, err := ParseObjectPropList(data, OPC_All, false, DecodePropValue,
		func(handle uint32, code uint16, v PropValue) error {
			entries = append(entries, PropListEntry{Handle: handle, Code: code, Value: v})
			return nil
		})
	require.NoError(t, err)
	assert.Zero(t, quirks)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(123456), entries[0].Value.Uint)
	assert.Equal(t, uint64(OFC_Association), entries[1].Value.Uint)
	assert.Equal(t, "a.jpg", entries[2].Value.Str)
}

func TestParsePropListQuirkLenient(t *testing.T) {
	// The device answers a filename query with a format tuple mixed
	// in; lenient mode counts it and keeps going.
	data := plData(
		plTuple(0x10, OPC_ObjectFileName, DTC_STR, plString("DCIM")),
		plTuple(0x11, OPC_ObjectFormat, DTC_UINT16, []byte{0x01, 0x30}),
		plTuple(0x11, OPC_ObjectFileName, DTC_STR, plString("Music")),
	)

	var handles []uint32
	quirks, err := ParseObjectPropList(data, OPC_ObjectFileName, false, DecodePropValue,
		func(handle uint32, code uint16, v PropValue) error {
			handles = append(handles, handle)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, quirks)
	assert.Equal(t, []uint32{0x10, 0x11, 0x11}, handles)
}

func TestParsePropListQuirkStrict(t *testing.T) {
	data := plData(
		plTuple(0x11, OPC_ObjectFormat, DTC_UINT16, []byte{0x01, 0x30}),
	)
	_, err := ParseObjectPropList(data, OPC_ObjectFileName, true, DecodePropValue,
		func(handle uint32, code uint16, v PropValue) error { return nil })
	assert.IsType(t, MalformedError(""), err)
}

func TestParsePropListTruncated(t *testing.T) {
	// Count says three, the device stopped after one. Tolerated with a
	// quirk, not an error.
	data := plData(
		plTuple(0x10, OPC_ObjectFileName, DTC_STR, plString("DCIM")),
	)
	byteOrder.PutUint32(data[0:], 3)

	var count int
	quirks, err := ParseObjectPropList(data, OPC_ObjectFileName, false, DecodePropValue,
		func(handle uint32, code uint16, v PropValue) error {
			count++
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, quirks)
}

func TestParsePropListUnknownTag(t *testing.T) {
	data := plData(
		plTuple(0x10, OPC_ObjectFileName, 0x1234, []byte{1, 2, 3, 4}),
	)
	_, err := ParseObjectPropList(data, OPC_All, false, DecodePropValue,
		func(handle uint32, code uint16, v PropValue) error { return nil })
	assert.IsType(t, MalformedError(""), err)
}

func TestParsePropListSkipDecoder(t *testing.T) {
	data := plData(
		plTuple(0x10, OPC_ObjectSize, DTC_UINT64, u64le(99)),
		plTuple(0x10, OPC_ObjectFileName, DTC_STR, plString("x.png")),
	)
	var codes []uint16
	_, err := ParseObjectPropList(data, OPC_All, false, SkipPropValue,
		func(handle uint32, code uint16, v PropValue) error {
			codes = append(codes, code)
			assert.Empty(t, v.Str)
			assert.Zero(t, v.Uint)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []uint16{OPC_ObjectSize, OPC_ObjectFileName}, codes)
}

func TestSessionPropListLastWins(t *testing.T) {
	data := plData(
		plTuple(0x10, OPC_ObjectFileName, DTC_STR, plString("old")),
		plTuple(0x10, OPC_ObjectFileName, DTC_STR, plString("new")),
	)

	f := newFakeConn()
	autoRespond(f, func(c fakeContainer) bool {
		if c.hdr.Code != OC_MTP_GetObjPropList {
			return false
		}
		f.queueData(c.hdr.Code, c.hdr.TransactionID, data)
		f.queueResponse(RC_OK, c.hdr.TransactionID)
		return true
	})

	s := newTestSession(f)
	require.NoError(t, s.Open())

	entries, err := s.GetObjectPropertyList(HandleRoot, 0, OPC_ObjectFileName)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Value.Str)
}

func TestParsePropListInt128Raw(t *testing.T) {
	raw := bytes.Repeat([]byte{0xEE}, 16)
	data := plData(
		plTuple(0x10, OPC_PersistantUniqueObjectIdentifier, DTC_UINT128, raw),
	)
	var got []byte
	_, err := ParseObjectPropList(data, OPC_All, false, DecodePropValue,
		func(handle uint32, code uint16, v PropValue) error {
			got = v.Raw
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

package mtp

import (
	"io"
)

// Android MTP extensions: 64-bit partial reads plus an in-place edit
// protocol (begin, send partial / truncate, end) that avoids
// re-uploading a whole object for a small change.
const (
	// Like GetPartialObject, with a 64-bit offset.
	OC_ANDROID_GET_PARTIAL_OBJECT64 = 0x95C1
	// Like GetPartialObject64 in the host-to-device direction.
	OC_ANDROID_SEND_PARTIAL_OBJECT = 0x95C2
	// Truncates the object to a 64-bit length.
	OC_ANDROID_TRUNCATE_OBJECT = 0x95C3
	// Brackets SendPartialObject and TruncateObject.
	OC_ANDROID_BEGIN_EDIT_OBJECT = 0x95C4
	OC_ANDROID_END_EDIT_OBJECT   = 0x95C5
)

func init() {
	OC_names[OC_ANDROID_GET_PARTIAL_OBJECT64] = "ANDROID_GET_PARTIAL_OBJECT64"
	OC_names[OC_ANDROID_SEND_PARTIAL_OBJECT] = "ANDROID_SEND_PARTIAL_OBJECT"
	OC_names[OC_ANDROID_TRUNCATE_OBJECT] = "ANDROID_TRUNCATE_OBJECT"
	OC_names[OC_ANDROID_BEGIN_EDIT_OBJECT] = "ANDROID_BEGIN_EDIT_OBJECT"
	OC_names[OC_ANDROID_END_EDIT_OBJECT] = "ANDROID_END_EDIT_OBJECT"
}

// splitOffset packs a 64-bit offset into the low/high parameter pair
// the extension ops expect.
func splitOffset(offset int64) (lo, hi uint32) {
	return uint32(offset & 0xFFFFFFFF), uint32(offset >> 32)
}

// AndroidEditSupported reports whether the device implements the
// in-place edit trio.
func (s *Session) AndroidEditSupported() bool {
	info, err := s.GetDeviceInfo()
	if err != nil {
		return false
	}
	return info.SupportsOperation(OC_ANDROID_BEGIN_EDIT_OBJECT) &&
		info.SupportsOperation(OC_ANDROID_SEND_PARTIAL_OBJECT) &&
		info.SupportsOperation(OC_ANDROID_END_EDIT_OBJECT)
}

func (s *Session) AndroidGetPartialObject64(handle uint32, w io.Writer, offset int64, size uint32) error {
	lo, hi := splitOffset(offset)
	var req, rep Container
	req.Code = OC_ANDROID_GET_PARTIAL_OBJECT64
	req.Param = []uint32{handle, lo, hi, size}
	return s.RunTransaction(&req, &rep, w, nil, 0)
}

func (s *Session) AndroidBeginEditObject(handle uint32) error {
	var req, rep Container
	req.Code = OC_ANDROID_BEGIN_EDIT_OBJECT
	req.Param = []uint32{handle}
	return s.RunTransaction(&req, &rep, nil, nil, 0)
}

func (s *Session) AndroidTruncate(handle uint32, size int64) error {
	lo, hi := splitOffset(size)
	var req, rep Container
	req.Code = OC_ANDROID_TRUNCATE_OBJECT
	req.Param = []uint32{handle, lo, hi}
	return s.RunTransaction(&req, &rep, nil, nil, 0)
}

func (s *Session) AndroidSendPartialObject(handle uint32, offset int64, size uint32, r io.Reader) error {
	lo, hi := splitOffset(offset)
	var req, rep Container
	req.Code = OC_ANDROID_SEND_PARTIAL_OBJECT
	req.Param = []uint32{handle, lo, hi, size}

	// MtpServer.cpp reads the payload of the header packet with a
	// plain write() rather than pwrite, so the header must travel in
	// its own transfer.
	s.t.SeparateHeader = true
	defer func() { s.t.SeparateHeader = false }()
	return s.RunTransaction(&req, &rep, nil, r, int64(size))
}

func (s *Session) AndroidEndEditObject(handle uint32) error {
	var req, rep Container
	req.Code = OC_ANDROID_END_EDIT_OBJECT
	req.Param = []uint32{handle}
	return s.RunTransaction(&req, &rep, nil, nil, 0)
}

// AndroidEditObject brackets fn with BeginEditObject/EndEditObject.
// The end commit runs even when fn fails, so the device never holds a
// stale edit session.
func (s *Session) AndroidEditObject(handle uint32, fn func() error) error {
	if err := s.AndroidBeginEditObject(handle); err != nil {
		return err
	}
	err := fn()
	if eerr := s.AndroidEndEditObject(handle); err == nil {
		err = eerr
	}
	return err
}

package mtp

import (
	"bytes"
	"fmt"
	"io"
)

// GetDeviceInfo fetches and caches the device's capability record.
// The cache lives for the session; use RefreshDeviceInfo after a
// DeviceInfoChanged event.
func (s *Session) GetDeviceInfo() (*DeviceInfo, error) {
	s.infoOnce.Do(func() {
		s.info, s.infoErr = s.fetchDeviceInfo()
	})
	return s.info, s.infoErr
}

func (s *Session) RefreshDeviceInfo() (*DeviceInfo, error) {
	info, err := s.fetchDeviceInfo()
	if err == nil {
		s.info, s.infoErr = info, nil
	}
	return info, err
}

func (s *Session) fetchDeviceInfo() (*DeviceInfo, error) {
	var req, rep Container
	req.Code = OC_GetDeviceInfo
	var buf bytes.Buffer
	if err := s.RunTransaction(&req, &rep, &buf, nil, 0); err != nil {
		return nil, err
	}
	info := &DeviceInfo{}
	if err := Decode(&buf, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (s *Session) GetStorageIDs() ([]uint32, error) {
	var req, rep Container
	req.Code = OC_GetStorageIDs
	var buf bytes.Buffer
	if err := s.RunTransaction(&req, &rep, &buf, nil, 0); err != nil {
		return nil, err
	}
	var ids Uint32Array
	if err := Decode(&buf, &ids); err != nil {
		return nil, err
	}
	return ids.Values, nil
}

func (s *Session) GetStorageInfo(storageID uint32) (*StorageInfo, error) {
	var req, rep Container
	req.Code = OC_GetStorageInfo
	req.Param = []uint32{storageID}
	var buf bytes.Buffer
	if err := s.RunTransaction(&req, &rep, &buf, nil, 0); err != nil {
		return nil, err
	}
	info := &StorageInfo{}
	if err := Decode(&buf, info); err != nil {
		return nil, err
	}
	return info, nil
}

// GetObjectHandles lists the handles under parent, optionally filtered
// by storage and object format. StorageAll and HandleRoot select
// everything at the top.
func (s *Session) GetObjectHandles(storageID uint32, format uint16, parent uint32) ([]uint32, error) {
	var req, rep Container
	req.Code = OC_GetObjectHandles
	req.Param = []uint32{storageID, uint32(format), parent}
	var buf bytes.Buffer
	if err := s.RunTransaction(&req, &rep, &buf, nil, 0); err != nil {
		return nil, err
	}
	var handles Uint32Array
	if err := Decode(&buf, &handles); err != nil {
		return nil, err
	}
	return handles.Values, nil
}

func (s *Session) GetNumObjects(storageID uint32, format uint16, parent uint32) (uint32, error) {
	var req, rep Container
	req.Code = OC_GetNumObjects
	req.Param = []uint32{storageID, uint32(format), parent}
	if err := s.RunTransaction(&req, &rep, nil, nil, 0); err != nil {
		return 0, err
	}
	if len(rep.Param) < 1 {
		return 0, SyncError("mtp: GetNumObjects response without count")
	}
	return rep.Param[0], nil
}

func (s *Session) GetObjectInfo(handle uint32) (*ObjectInfo, error) {
	var req, rep Container
	req.Code = OC_GetObjectInfo
	req.Param = []uint32{handle}
	var buf bytes.Buffer
	if err := s.RunTransaction(&req, &rep, &buf, nil, 0); err != nil {
		return nil, err
	}
	info := &ObjectInfo{}
	if err := Decode(&buf, info); err != nil {
		return nil, err
	}
	return info, nil
}

// GetObject streams the object's bytes into dst. Pass a stream built
// with WithWriteProgress or WithWriteCancel for reporting and
// cancellation.
func (s *Session) GetObject(handle uint32, dst io.Writer) error {
	var req, rep Container
	req.Code = OC_GetObject
	req.Param = []uint32{handle}
	return s.RunTransaction(&req, &rep, dst, nil, 0)
}

func (s *Session) GetThumb(handle uint32, dst io.Writer) error {
	var req, rep Container
	req.Code = OC_GetThumb
	req.Param = []uint32{handle}
	return s.RunTransaction(&req, &rep, dst, nil, 0)
}

func (s *Session) GetPartialObject(handle uint32, dst io.Writer, offset, size uint32) error {
	var req, rep Container
	req.Code = OC_GetPartialObject
	req.Param = []uint32{handle, offset, size}
	return s.RunTransaction(&req, &rep, dst, nil, 0)
}

// SendObjectInfo announces an object to be created under the wanted
// storage and parent, and returns where the device actually put it.
// The returned handle is the one SendObject will fill.
func (s *Session) SendObjectInfo(wantStorageID, wantParent uint32, info *ObjectInfo) (storageID, parent, handle uint32, err error) {
	var req, rep Container
	req.Code = OC_SendObjectInfo
	req.Param = []uint32{wantStorageID, wantParent}

	buf := &bytes.Buffer{}
	if err = Encode(buf, info); err != nil {
		return
	}
	if err = s.RunTransaction(&req, &rep, nil, buf, int64(buf.Len())); err != nil {
		return
	}
	if len(rep.Param) < 3 {
		err = SyncError("mtp: SendObjectInfo response missing placement params")
		return
	}
	return rep.Param[0], rep.Param[1], rep.Param[2], nil
}

// SendObject streams size bytes as the data of the object most
// recently announced with SendObjectInfo.
func (s *Session) SendObject(src io.Reader, size int64) error {
	var req, rep Container
	req.Code = OC_SendObject
	return s.RunTransaction(&req, &rep, nil, src, size)
}

// DeleteObject removes the object, or with a format code, the matching
// objects below it. Directories are deleted recursively by the device.
func (s *Session) DeleteObject(handle uint32, format uint16) error {
	var req, rep Container
	req.Code = OC_DeleteObject
	req.Param = []uint32{handle, uint32(format)}
	return s.RunTransaction(&req, &rep, nil, nil, 0)
}

func (s *Session) MoveObject(handle, storageID, parent uint32) error {
	var req, rep Container
	req.Code = OC_MoveObject
	req.Param = []uint32{handle, storageID, parent}
	return s.RunTransaction(&req, &rep, nil, nil, 0)
}

func (s *Session) CopyObject(handle, storageID, parent uint32) (uint32, error) {
	var req, rep Container
	req.Code = OC_CopyObject
	req.Param = []uint32{handle, storageID, parent}
	if err := s.RunTransaction(&req, &rep, nil, nil, 0); err != nil {
		return 0, err
	}
	if len(rep.Param) < 1 {
		return 0, SyncError("mtp: CopyObject response without new handle")
	}
	return rep.Param[0], nil
}

func (s *Session) GetObjectPropsSupported(format uint16) ([]uint16, error) {
	var req, rep Container
	req.Code = OC_MTP_GetObjectPropsSupported
	req.Param = []uint32{uint32(format)}
	var buf bytes.Buffer
	if err := s.RunTransaction(&req, &rep, &buf, nil, 0); err != nil {
		return nil, err
	}
	var props Uint16Array
	if err := Decode(&buf, &props); err != nil {
		return nil, err
	}
	return props.Values, nil
}

func (s *Session) GetObjectPropDesc(prop, format uint16) (*ObjectPropDesc, error) {
	var req, rep Container
	req.Code = OC_MTP_GetObjectPropDesc
	req.Param = []uint32{uint32(prop), uint32(format)}
	var buf bytes.Buffer
	if err := s.RunTransaction(&req, &rep, &buf, nil, 0); err != nil {
		return nil, err
	}
	desc := &ObjectPropDesc{}
	if err := Decode(&buf, desc); err != nil {
		return nil, err
	}
	return desc, nil
}

func (s *Session) GetObjectPropValue(handle uint32, prop uint16, value interface{}) error {
	var req, rep Container
	req.Code = OC_MTP_GetObjectPropValue
	req.Param = []uint32{handle, uint32(prop)}
	var buf bytes.Buffer
	if err := s.RunTransaction(&req, &rep, &buf, nil, 0); err != nil {
		return err
	}
	return Decode(&buf, value)
}

func (s *Session) SetObjectPropValue(handle uint32, prop uint16, value interface{}) error {
	var req, rep Container
	req.Code = OC_MTP_SetObjectPropValue
	req.Param = []uint32{handle, uint32(prop)}
	var buf bytes.Buffer
	if err := Encode(&buf, value); err != nil {
		return err
	}
	return s.RunTransaction(&req, &rep, nil, &buf, int64(buf.Len()))
}

// GetObjectStringProperty reads a single string property, e.g. the
// filename.
func (s *Session) GetObjectStringProperty(handle uint32, prop uint16) (string, error) {
	var v StringValue
	if err := s.GetObjectPropValue(handle, prop, &v); err != nil {
		return "", err
	}
	return v.Value, nil
}

// GetObjectIntegerProperty reads an integer property, widening to
// uint64 whatever width the device chose.
func (s *Session) GetObjectIntegerProperty(handle uint32, prop uint16) (uint64, error) {
	var req, rep Container
	req.Code = OC_MTP_GetObjectPropValue
	req.Param = []uint32{handle, uint32(prop)}
	var buf bytes.Buffer
	if err := s.RunTransaction(&req, &rep, &buf, nil, 0); err != nil {
		return 0, err
	}
	data := buf.Bytes()
	switch len(data) {
	case 1:
		return uint64(data[0]), nil
	case 2:
		return uint64(byteOrder.Uint16(data)), nil
	case 4:
		return uint64(byteOrder.Uint32(data)), nil
	case 8:
		return byteOrder.Uint64(data), nil
	default:
		return 0, MalformedError(fmt.Sprintf(
			"mtp: %d bytes is not an integer property", len(data)))
	}
}

// GetObjectParent resolves the parent handle. It prefers the
// ParentObject property and falls back to GetObjectInfo for devices
// that do not expose it.
func (s *Session) GetObjectParent(handle uint32) (uint32, error) {
	parent, err := s.GetObjectIntegerProperty(handle, OPC_ParentObject)
	if err == nil {
		return uint32(parent), nil
	}
	if rc, ok := err.(RCError); ok &&
		(rc == RCError(RC_OperationNotSupported) || rc == RCError(RC_MTP_ObjectProp_Not_Supported)) {
		info, ierr := s.GetObjectInfo(handle)
		if ierr != nil {
			return 0, ierr
		}
		return info.ParentObject, nil
	}
	return 0, err
}

// GetDeviceProperty returns the raw value bytes of a device property.
func (s *Session) GetDeviceProperty(code uint16) ([]byte, error) {
	var req, rep Container
	req.Code = OC_GetDevicePropValue
	req.Param = []uint32{uint32(code)}
	var buf bytes.Buffer
	if err := s.RunTransaction(&req, &rep, &buf, nil, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Session) GetDevicePropDesc(code uint16) (*DevicePropDesc, error) {
	var req, rep Container
	req.Code = OC_GetDevicePropDesc
	req.Param = []uint32{uint32(code)}
	var buf bytes.Buffer
	if err := s.RunTransaction(&req, &rep, &buf, nil, 0); err != nil {
		return nil, err
	}
	desc := &DevicePropDesc{}
	if err := Decode(&buf, desc); err != nil {
		return nil, err
	}
	return desc, nil
}

func (s *Session) SetDevicePropValue(code uint16, src interface{}) error {
	var req, rep Container
	req.Code = OC_SetDevicePropValue
	req.Param = []uint32{uint32(code)}
	var buf bytes.Buffer
	if err := Encode(&buf, src); err != nil {
		return err
	}
	return s.RunTransaction(&req, &rep, nil, &buf, int64(buf.Len()))
}

func (s *Session) ResetDevicePropValue(code uint16) error {
	var req, rep Container
	req.Code = OC_ResetDevicePropValue
	req.Param = []uint32{uint32(code)}
	return s.RunTransaction(&req, &rep, nil, nil, 0)
}

// GetObjectPropList asks for a bulk (handle, property, value) listing
// below parent: depth 1 covers the direct children, property OPC_All
// selects every property. The raw reply bytes are handed to
// ParseObjectPropList.
func (s *Session) GetObjectPropList(parent uint32, format uint16, property uint32, groupCode, depth uint32) ([]byte, error) {
	var req, rep Container
	req.Code = OC_MTP_GetObjPropList
	req.Param = []uint32{parent, uint32(format), property, groupCode, depth}
	var buf bytes.Buffer
	if err := s.RunTransaction(&req, &rep, &buf, nil, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ObjectPropListSupported reports whether the device implements the
// bulk property listing.
func (s *Session) ObjectPropListSupported() bool {
	info, err := s.GetDeviceInfo()
	if err != nil {
		return false
	}
	return info.SupportsOperation(OC_MTP_GetObjPropList)
}

package vfs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droidxfer/go-mtp/mtp"
)

// fakeClient keeps an in-memory object tree with device-style flat
// handles. Root children carry parent handle 0, the way devices
// report them.
type fakeObject struct {
	name   string
	parent uint32
	format uint16
	data   []byte
}

type fakeClient struct {
	objects map[uint32]*fakeObject
	next    uint32

	propList bool
	editable bool

	pendingInfo   *mtp.ObjectInfo
	pendingHandle uint32

	calls []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: map[uint32]*fakeObject{}, next: 0x10}
}

func (c *fakeClient) add(parent uint32, name string, format uint16, data []byte) uint32 {
	h := c.next
	c.next++
	p := parent
	if p == mtp.HandleRoot {
		p = 0
	}
	c.objects[h] = &fakeObject{name: name, parent: p, format: format, data: data}
	return h
}

func (c *fakeClient) childrenOf(parent uint32) []uint32 {
	want := parent
	if want == mtp.HandleRoot {
		want = 0
	}
	var out []uint32
	for h := uint32(0x10); h < c.next; h++ {
		if o, ok := c.objects[h]; ok && o.parent == want {
			out = append(out, h)
		}
	}
	return out
}

func (c *fakeClient) GetDeviceInfo() (*mtp.DeviceInfo, error) {
	return &mtp.DeviceInfo{Manufacturer: "fake", Model: "device"}, nil
}

func (c *fakeClient) GetStorageIDs() ([]uint32, error) {
	return []uint32{0x10001}, nil
}

func (c *fakeClient) GetStorageInfo(id uint32) (*mtp.StorageInfo, error) {
	return &mtp.StorageInfo{VolumeLabel: "internal"}, nil
}

func (c *fakeClient) GetObjectHandles(storageID uint32, format uint16, parent uint32) ([]uint32, error) {
	c.calls = append(c.calls, fmt.Sprintf("handles:%x", parent))
	return c.childrenOf(parent), nil
}

func (c *fakeClient) GetObjectInfo(handle uint32) (*mtp.ObjectInfo, error) {
	o, ok := c.objects[handle]
	if !ok {
		return nil, mtp.RCError(mtp.RC_InvalidObjectHandle)
	}
	return &mtp.ObjectInfo{
		Filename:       o.name,
		ObjectFormat:   o.format,
		CompressedSize: uint32(len(o.data)),
		ParentObject:   o.parent,
	}, nil
}

func (c *fakeClient) GetObjectStringProperty(handle uint32, prop uint16) (string, error) {
	o, ok := c.objects[handle]
	if !ok {
		return "", mtp.RCError(mtp.RC_InvalidObjectHandle)
	}
	if prop == mtp.OPC_ObjectFileName {
		return o.name, nil
	}
	return "", mtp.RCError(mtp.RC_MTP_ObjectProp_Not_Supported)
}

func (c *fakeClient) GetObjectIntegerProperty(handle uint32, prop uint16) (uint64, error) {
	o, ok := c.objects[handle]
	if !ok {
		return 0, mtp.RCError(mtp.RC_InvalidObjectHandle)
	}
	switch prop {
	case mtp.OPC_ObjectSize:
		return uint64(len(o.data)), nil
	case mtp.OPC_ParentObject:
		return uint64(o.parent), nil
	}
	return 0, mtp.RCError(mtp.RC_MTP_ObjectProp_Not_Supported)
}

func (c *fakeClient) GetObjectParent(handle uint32) (uint32, error) {
	o, ok := c.objects[handle]
	if !ok {
		return 0, mtp.RCError(mtp.RC_InvalidObjectHandle)
	}
	return o.parent, nil
}

func (c *fakeClient) GetObjectPropertyList(parent uint32, format uint16, property uint32) ([]mtp.PropListEntry, error) {
	if !c.propList {
		return nil, mtp.RCError(mtp.RC_OperationNotSupported)
	}
	var out []mtp.PropListEntry
	for _, h := range c.childrenOf(parent) {
		o := c.objects[h]
		if property == mtp.OPC_ObjectFileName || property == mtp.OPC_All {
			out = append(out, mtp.PropListEntry{
				Handle: h,
				Code:   mtp.OPC_ObjectFileName,
				Value:  mtp.PropValue{DataType: mtp.DTC_STR, Str: o.name},
			})
		}
		if property == mtp.OPC_All {
			out = append(out, mtp.PropListEntry{
				Handle: h,
				Code:   mtp.OPC_ObjectFormat,
				Value:  mtp.PropValue{DataType: mtp.DTC_UINT16, Uint: uint64(o.format)},
			}, mtp.PropListEntry{
				Handle: h,
				Code:   mtp.OPC_ObjectSize,
				Value:  mtp.PropValue{DataType: mtp.DTC_UINT64, Uint: uint64(len(o.data))},
			})
		}
	}
	return out, nil
}

func (c *fakeClient) ObjectPropListSupported() bool {
	return c.propList
}

func (c *fakeClient) GetObject(handle uint32, dst io.Writer) error {
	o, ok := c.objects[handle]
	if !ok {
		return mtp.RCError(mtp.RC_InvalidObjectHandle)
	}
	_, err := dst.Write(o.data)
	return err
}

func (c *fakeClient) SendObjectInfo(storageID, parent uint32, info *mtp.ObjectInfo) (uint32, uint32, uint32, error) {
	for _, h := range c.childrenOf(parent) {
		if c.objects[h].name == info.Filename {
			return 0, 0, 0, mtp.RCError(mtp.RC_InvalidParameter)
		}
	}
	h := c.add(parent, info.Filename, info.ObjectFormat, nil)
	c.pendingInfo = info
	c.pendingHandle = h
	return 0x10001, parent, h, nil
}

func (c *fakeClient) SendObject(src io.Reader, size int64) error {
	if c.pendingInfo == nil {
		return mtp.RCError(mtp.RC_NoValidObjectInfo)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, src); err != nil {
		return err
	}
	c.objects[c.pendingHandle].data = buf.Bytes()
	c.pendingInfo = nil
	return nil
}

func (c *fakeClient) AndroidEditSupported() bool {
	return c.editable
}

func (c *fakeClient) AndroidEditObject(handle uint32, fn func() error) error {
	if _, ok := c.objects[handle]; !ok {
		return mtp.RCError(mtp.RC_InvalidObjectHandle)
	}
	c.calls = append(c.calls, "begin-edit")
	err := fn()
	c.calls = append(c.calls, "end-edit")
	return err
}

func (c *fakeClient) AndroidSendPartialObject(handle uint32, offset int64, size uint32, r io.Reader) error {
	o, ok := c.objects[handle]
	if !ok {
		return mtp.RCError(mtp.RC_InvalidObjectHandle)
	}
	patch := make([]byte, size)
	if _, err := io.ReadFull(r, patch); err != nil {
		return err
	}
	end := offset + int64(size)
	if int64(len(o.data)) < end {
		grown := make([]byte, end)
		copy(grown, o.data)
		o.data = grown
	}
	copy(o.data[offset:end], patch)
	c.calls = append(c.calls, "send-partial")
	return nil
}

func (c *fakeClient) AndroidTruncate(handle uint32, size int64) error {
	o, ok := c.objects[handle]
	if !ok {
		return mtp.RCError(mtp.RC_InvalidObjectHandle)
	}
	if int64(len(o.data)) > size {
		o.data = o.data[:size]
	}
	c.calls = append(c.calls, "truncate")
	return nil
}

func (c *fakeClient) DeleteObject(handle uint32, format uint16) error {
	if _, ok := c.objects[handle]; !ok {
		return mtp.RCError(mtp.RC_InvalidObjectHandle)
	}
	var drop func(h uint32)
	drop = func(h uint32) {
		for _, ch := range c.childrenOf(h) {
			drop(ch)
		}
		delete(c.objects, h)
	}
	drop(handle)
	return nil
}

// seed builds /DCIM/camera.jpg and /Music.
func seed(c *fakeClient) (dcim, jpg, music uint32) {
	dcim = c.add(mtp.HandleRoot, "DCIM", mtp.OFC_Association, nil)
	jpg = c.add(dcim, "camera.jpg", mtp.OFC_EXIF_JPEG, []byte("jpegdata"))
	music = c.add(mtp.HandleRoot, "Music", mtp.OFC_Association, nil)
	return
}

func TestResolveLaws(t *testing.T) {
	c := newFakeClient()
	dcim, jpg, _ := seed(c)
	f := New(c)

	root, err := f.Resolve("/")
	require.NoError(t, err)
	assert.Equal(t, mtp.HandleRoot, root)

	got, err := f.Resolve("/DCIM")
	require.NoError(t, err)
	assert.Equal(t, dcim, got)

	// "." and empty components are no-ops.
	direct, err := f.Resolve("/DCIM/camera.jpg")
	require.NoError(t, err)
	dotted, err := f.Resolve("/DCIM/./camera.jpg")
	require.NoError(t, err)
	doubled, err := f.Resolve("//DCIM//camera.jpg")
	require.NoError(t, err)
	assert.Equal(t, jpg, direct)
	assert.Equal(t, direct, dotted)
	assert.Equal(t, direct, doubled)

	// ".." folds through the parent.
	viaUp, err := f.Resolve("/Music/../DCIM/camera.jpg")
	require.NoError(t, err)
	assert.Equal(t, jpg, viaUp)

	// ".." at the root stays at the root.
	atRoot, err := f.Resolve("/..")
	require.NoError(t, err)
	assert.Equal(t, mtp.HandleRoot, atRoot)
}

func TestResolveNotFoundKeepsComponent(t *testing.T) {
	c := newFakeClient()
	seed(c)
	f := New(c)

	_, err := f.Resolve("/DCIM/missing.jpg")
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf), "want NotFoundError, got %v", err)
	assert.Equal(t, "missing.jpg", nf.Component)
}

func TestResolveRelativeAndChdir(t *testing.T) {
	c := newFakeClient()
	dcim, jpg, _ := seed(c)
	f := New(c)

	require.NoError(t, f.Chdir("/DCIM"))
	got, err := f.Resolve("camera.jpg")
	require.NoError(t, err)
	assert.Equal(t, jpg, got)

	cwd, err := f.Cwd()
	require.NoError(t, err)
	assert.Equal(t, "/DCIM/", cwd)

	up, err := f.Resolve("..")
	require.NoError(t, err)
	assert.Equal(t, mtp.HandleRoot, up)
	_ = dcim
}

func TestListStreamsEntries(t *testing.T) {
	for _, propList := range []bool{false, true} {
		c := newFakeClient()
		seed(c)
		c.propList = propList
		f := New(c)

		var names []string
		err := f.List("/", func(e Entry) error {
			names = append(names, e.Name)
			return nil
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"DCIM", "Music"}, names,
			"propList=%v", propList)
	}
}

func TestMkdirAndReuse(t *testing.T) {
	c := newFakeClient()
	seed(c)
	f := New(c)

	id, err := f.Mkdir("/Pictures")
	require.NoError(t, err)

	// A second mkdir resolves the existing directory instead of
	// failing on the device's collision response.
	again, err := f.Mkdir("/Pictures")
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestPushPullRoundTrip(t *testing.T) {
	c := newFakeClient()
	seed(c)
	f := New(c)

	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "album", "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "album", "one.mp3"), []byte("one"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "album", "sub", "two.txt"), []byte("two"), 0644))

	require.NoError(t, f.Push(filepath.Join(src, "album"), "/Music/album", nil))

	data, err := f.Cat("/Music/album/one.mp3")
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	id, err := f.Resolve("/Music/album/one.mp3")
	require.NoError(t, err)
	info, err := c.GetObjectInfo(id)
	require.NoError(t, err)
	assert.Equal(t, uint16(mtp.OFC_MP3), info.ObjectFormat)

	dst := t.TempDir()
	require.NoError(t, f.Pull("/Music/album", filepath.Join(dst, "album"), nil))

	got, err := os.ReadFile(filepath.Join(dst, "album", "sub", "two.txt"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
}

func TestRemoveRecursive(t *testing.T) {
	c := newFakeClient()
	dcim, _, _ := seed(c)
	f := New(c)

	require.NoError(t, f.Remove("/DCIM"))
	_, ok := c.objects[dcim]
	assert.False(t, ok)

	_, err := f.Resolve("/DCIM")
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestPatchFileInPlace(t *testing.T) {
	c := newFakeClient()
	seed(c)
	c.editable = true
	f := New(c)

	require.NoError(t, f.PatchFile("/DCIM/camera.jpg", 4, []byte("DATA")))

	data, err := f.Cat("/DCIM/camera.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpegDATA", string(data))

	// The patch ran inside an edit bracket.
	assert.Equal(t, []string{"begin-edit", "send-partial", "end-edit"}, c.calls[len(c.calls)-3:])
}

func TestPatchFileGrowsObject(t *testing.T) {
	c := newFakeClient()
	seed(c)
	c.editable = true
	f := New(c)

	require.NoError(t, f.PatchFile("/DCIM/camera.jpg", 8, []byte("tail")))

	data, err := f.Cat("/DCIM/camera.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpegdatatail", string(data))
}

func TestTruncateFile(t *testing.T) {
	c := newFakeClient()
	seed(c)
	c.editable = true
	f := New(c)

	require.NoError(t, f.TruncateFile("/DCIM/camera.jpg", 4))

	data, err := f.Cat("/DCIM/camera.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
}

func TestEditUnsupportedDevice(t *testing.T) {
	c := newFakeClient()
	seed(c)
	f := New(c) // editable not set

	err := f.PatchFile("/DCIM/camera.jpg", 0, []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support in-place editing")

	err = f.TruncateFile("/DCIM/camera.jpg", 1)
	require.Error(t, err)
}

func TestFormatForName(t *testing.T) {
	assert.Equal(t, uint16(mtp.OFC_EXIF_JPEG), FormatForName("IMG_0001.JPG"))
	assert.Equal(t, uint16(mtp.OFC_Text), FormatForName("notes.txt"))
	assert.Equal(t, uint16(mtp.OFC_Undefined), FormatForName("archive.tar.zst"))
}

func TestLockedHint(t *testing.T) {
	err := lockedHint(mtp.RCError(mtp.RC_InvalidStorageID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked or in charging-only mode")
	assert.True(t, errors.Is(err, mtp.RCError(mtp.RC_InvalidStorageID)))
}

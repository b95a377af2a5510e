package vfs

import (
	"fmt"
	"io"

	"github.com/droidxfer/go-mtp/mtp"
)

// Editor is the optional in-place edit extension (Android devices).
// Clients that don't implement the interface, and clients whose
// AndroidEditSupported reports false, fail up front before any edit
// operation is sent.
type Editor interface {
	AndroidEditSupported() bool
	AndroidEditObject(handle uint32, fn func() error) error
	AndroidSendPartialObject(handle uint32, offset int64, size uint32, r io.Reader) error
	AndroidTruncate(handle uint32, size int64) error
}

var _ Editor = (*mtp.Session)(nil)

func (f *FS) editor() (Editor, error) {
	ed, ok := f.c.(Editor)
	if !ok || !ed.AndroidEditSupported() {
		return nil, fmt.Errorf("vfs: device does not support in-place editing")
	}
	return ed, nil
}

// PatchFile overwrites len(data) bytes of the object at remote,
// starting at offset, without re-sending the rest of the object.
func (f *FS) PatchFile(remote string, offset int64, data []byte) error {
	ed, err := f.editor()
	if err != nil {
		return err
	}
	id, err := f.Resolve(remote)
	if err != nil {
		return err
	}
	err = ed.AndroidEditObject(id, func() error {
		src := mtp.NewByteInputStream(data)
		return ed.AndroidSendPartialObject(id, offset, uint32(len(data)), src)
	})
	return translateResponse(err, remote)
}

// TruncateFile cuts the object at remote down to size bytes.
func (f *FS) TruncateFile(remote string, size int64) error {
	ed, err := f.editor()
	if err != nil {
		return err
	}
	id, err := f.Resolve(remote)
	if err != nil {
		return err
	}
	err = ed.AndroidEditObject(id, func() error {
		return ed.AndroidTruncate(id, size)
	})
	return translateResponse(err, remote)
}

// Package vfs presents the device's flat object handles as a
// hierarchical file system: paths resolve through parent/child
// queries, directories stream their entries, and whole trees move with
// Push and Pull.
package vfs

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/droidxfer/go-mtp/mtp"
)

// Client is the slice of the session engine the namespace layer
// needs. *mtp.Session implements it.
type Client interface {
	GetDeviceInfo() (*mtp.DeviceInfo, error)
	GetStorageIDs() ([]uint32, error)
	GetStorageInfo(storageID uint32) (*mtp.StorageInfo, error)
	GetObjectHandles(storageID uint32, format uint16, parent uint32) ([]uint32, error)
	GetObjectInfo(handle uint32) (*mtp.ObjectInfo, error)
	GetObjectStringProperty(handle uint32, prop uint16) (string, error)
	GetObjectIntegerProperty(handle uint32, prop uint16) (uint64, error)
	GetObjectParent(handle uint32) (uint32, error)
	GetObjectPropertyList(parent uint32, format uint16, property uint32) ([]mtp.PropListEntry, error)
	ObjectPropListSupported() bool
	GetObject(handle uint32, dst io.Writer) error
	SendObjectInfo(storageID, parent uint32, info *mtp.ObjectInfo) (uint32, uint32, uint32, error)
	SendObject(src io.Reader, size int64) error
	DeleteObject(handle uint32, format uint16) error
}

var _ Client = (*mtp.Session)(nil)

// NotFoundError names the path component that did not resolve.
type NotFoundError struct {
	Component string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("vfs: could not find %q in path", e.Component)
}

// ExistsError reports a destination that is already present.
type ExistsError struct {
	Name string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("vfs: %q already exists", e.Name)
}

// lockedHint decorates the response Android gives while the screen is
// locked or the cable is in charging-only mode.
func lockedHint(err error) error {
	if rc, ok := err.(mtp.RCError); ok && rc == mtp.RCError(mtp.RC_InvalidStorageID) {
		return fmt.Errorf("%w; the device may be locked or in charging-only mode, unlock it and select MTP/PTP", err)
	}
	return err
}

// FS is a view of the device rooted at "/" with a current directory.
// It is not safe for concurrent use; share the underlying session
// instead.
type FS struct {
	c Client

	// Storage restricts listings to one storage; StorageAll spans
	// every store.
	Storage uint32

	cwd uint32
}

func New(c Client) *FS {
	return &FS{
		c:       c,
		Storage: mtp.StorageAll,
		cwd:     mtp.HandleRoot,
	}
}

// Entry is one directory listing row.
type Entry struct {
	Handle uint32
	Name   string
	Format uint16
	Size   uint64
}

func (e *Entry) IsDir() bool {
	return e.Format == mtp.OFC_Association
}

// resolveChild finds the child of parent whose filename equals name,
// case-sensitively; the first match wins. The bulk property listing is
// used when the device has it, one filename property query per child
// otherwise.
func (f *FS) resolveChild(parent uint32, name string) (uint32, error) {
	if f.c.ObjectPropListSupported() {
		entries, err := f.c.GetObjectPropertyList(parent, 0, mtp.OPC_ObjectFileName)
		if err == nil {
			for _, e := range entries {
				if e.Code == mtp.OPC_ObjectFileName && e.Value.Str == name {
					return e.Handle, nil
				}
			}
			return 0, &NotFoundError{Component: name}
		}
		// Fall through to the slow path on any listing failure.
	}

	handles, err := f.c.GetObjectHandles(f.Storage, 0, parent)
	if err != nil {
		return 0, lockedHint(err)
	}
	for _, h := range handles {
		got, err := f.c.GetObjectStringProperty(h, mtp.OPC_ObjectFileName)
		if err != nil {
			// Skip children the device refuses to describe.
			continue
		}
		if got == name {
			return h, nil
		}
	}
	return 0, &NotFoundError{Component: name}
}

// Resolve maps a path to an object handle. Absolute paths start at the
// root, relative ones at the current directory; empty components and
// "." are no-ops, ".." asks the device for the parent, folding the
// Device sentinel back to the root.
func (f *FS) Resolve(path string) (uint32, error) {
	id := f.cwd
	if strings.HasPrefix(path, "/") {
		id = mtp.HandleRoot
	}
	for _, component := range strings.Split(path, "/") {
		switch component {
		case "", ".":
		case "..":
			if id == mtp.HandleRoot {
				continue
			}
			parent, err := f.c.GetObjectParent(id)
			if err != nil {
				return 0, err
			}
			if parent == mtp.HandleDevice {
				parent = mtp.HandleRoot
			}
			id = parent
		default:
			child, err := f.resolveChild(id, component)
			if err != nil {
				return 0, err
			}
			id = child
		}
	}
	return id, nil
}

// ResolveParent splits path into its directory, resolved to a handle,
// and its final component.
func (f *FS) ResolveParent(path string) (uint32, string, error) {
	pos := strings.LastIndex(path, "/")
	if pos < 0 {
		return f.cwd, path, nil
	}
	dir := path[:pos]
	if dir == "" {
		dir = "/"
	}
	parent, err := f.Resolve(dir)
	return parent, path[pos+1:], err
}

// Chdir moves the current directory.
func (f *FS) Chdir(path string) error {
	id, err := f.Resolve(path)
	if err != nil {
		return err
	}
	f.cwd = id
	return nil
}

// Cwd reconstructs the current directory's path by walking parents.
func (f *FS) Cwd() (string, error) {
	path := ""
	id := f.cwd
	for id != mtp.HandleDevice && id != mtp.HandleRoot {
		name, err := f.c.GetObjectStringProperty(id, mtp.OPC_ObjectFileName)
		if err != nil {
			return "", err
		}
		path = name + "/" + path
		id, err = f.c.GetObjectParent(id)
		if err != nil {
			return "", err
		}
	}
	return "/" + path, nil
}

// List streams the entries below the object at path into visit. Without
// the bulk property listing each child's metadata is fetched as it is
// visited; with it, the whole listing arrives in one reply first.
func (f *FS) List(path string, visit func(Entry) error) error {
	parent, err := f.Resolve(path)
	if err != nil {
		return err
	}
	return f.ListHandle(parent, visit)
}

func (f *FS) ListHandle(parent uint32, visit func(Entry) error) error {
	if f.c.ObjectPropListSupported() {
		entries, err := f.c.GetObjectPropertyList(parent, 0, mtp.OPC_All)
		if err == nil {
			return f.visitPropListEntries(entries, visit)
		}
		// Some devices advertise GetObjPropList and then refuse it for
		// particular parents; take the slow path.
	}

	handles, err := f.c.GetObjectHandles(f.Storage, 0, parent)
	if err != nil {
		return lockedHint(err)
	}
	for _, h := range handles {
		info, err := f.c.GetObjectInfo(h)
		if err != nil {
			continue
		}
		e := Entry{
			Handle: h,
			Name:   info.Filename,
			Format: info.ObjectFormat,
			Size:   uint64(info.CompressedSize),
		}
		if err := visit(e); err != nil {
			return err
		}
	}
	return nil
}

func (f *FS) visitPropListEntries(entries []mtp.PropListEntry, visit func(Entry) error) error {
	byHandle := map[uint32]*Entry{}
	var order []uint32
	for _, pe := range entries {
		e, ok := byHandle[pe.Handle]
		if !ok {
			e = &Entry{Handle: pe.Handle}
			byHandle[pe.Handle] = e
			order = append(order, pe.Handle)
		}
		switch pe.Code {
		case mtp.OPC_ObjectFileName:
			e.Name = pe.Value.Str
		case mtp.OPC_ObjectFormat:
			e.Format = uint16(pe.Value.Uint)
		case mtp.OPC_ObjectSize:
			e.Size = pe.Value.Uint
		}
	}
	for _, h := range order {
		e := byHandle[h]
		if e.Name == "" {
			name, err := f.c.GetObjectStringProperty(h, mtp.OPC_ObjectFileName)
			if err != nil {
				continue
			}
			e.Name = name
		}
		if err := visit(*e); err != nil {
			return err
		}
	}
	return nil
}

// Mkdir creates one directory below the resolved parent of path and
// returns its handle. When the device rejects the creation because the
// name is taken, the existing child is resolved and reused.
func (f *FS) Mkdir(path string) (uint32, error) {
	parent, name, err := f.ResolveParent(path)
	if err != nil {
		return 0, err
	}
	return f.mkdirIn(parent, name)
}

func (f *FS) mkdirIn(parent uint32, name string) (uint32, error) {
	info := &mtp.ObjectInfo{
		ObjectFormat:    mtp.OFC_Association,
		AssociationType: mtp.AT_GenericFolder,
		Filename:        name,
		ParentObject:    parent,
	}
	_, _, handle, err := f.c.SendObjectInfo(mtp.StorageAny, parent, info)
	if err == nil {
		return handle, nil
	}

	// Devices disagree on the code for a name collision; whatever it
	// was, reuse the existing child when there is one.
	if id, rerr := f.resolveChild(parent, name); rerr == nil {
		return id, nil
	}
	return 0, translateResponse(err, name)
}

// Remove deletes the object at path. Associations go recursively, the
// device does the walking.
func (f *FS) Remove(path string) error {
	id, err := f.Resolve(path)
	if err != nil {
		return err
	}
	return translateResponse(f.c.DeleteObject(id, 0), path)
}

// translateResponse maps the response codes that have a clear local
// meaning onto semantic errors, leaving the rest verbatim.
func translateResponse(err error, name string) error {
	var rc mtp.RCError
	if err == nil || !errors.As(err, &rc) {
		return err
	}
	switch uint16(rc) {
	case mtp.RC_AccessDenied, mtp.RC_ObjectWriteProtected, mtp.RC_StoreReadOnly:
		return fmt.Errorf("vfs: %s: access denied (%w)", name, err)
	case mtp.RC_StoreFull:
		return fmt.Errorf("vfs: %s: store full (%w)", name, err)
	case mtp.RC_InvalidStorageID:
		return lockedHint(err)
	}
	return err
}

package vfs

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	liblog "github.com/droidxfer/go-mtp/log"
	"github.com/droidxfer/go-mtp/mtp"
)

var xferLog = liblog.NewChildLogger(liblog.Root, "vfs", false)

// formatByExt maps filename extensions to object format codes. The
// device only needs a hint; anything unknown travels as Undefined.
var formatByExt = map[string]uint16{
	".txt":  mtp.OFC_Text,
	".log":  mtp.OFC_Text,
	".htm":  mtp.OFC_HTML,
	".html": mtp.OFC_HTML,
	".wav":  mtp.OFC_WAV,
	".mp3":  mtp.OFC_MP3,
	".avi":  mtp.OFC_AVI,
	".mpg":  mtp.OFC_MPEG,
	".mpeg": mtp.OFC_MPEG,
	".jpg":  mtp.OFC_EXIF_JPEG,
	".jpeg": mtp.OFC_EXIF_JPEG,
	".bmp":  mtp.OFC_BMP,
	".gif":  mtp.OFC_GIF,
	".png":  mtp.OFC_PNG,
	".tif":  mtp.OFC_TIFF,
	".tiff": mtp.OFC_TIFF,
	".wma":  mtp.OFC_MTP_WMA,
	".ogg":  mtp.OFC_MTP_OGG,
	".aac":  mtp.OFC_MTP_AAC,
	".flac": mtp.OFC_MTP_FLAC,
	".wmv":  mtp.OFC_MTP_WMV,
	".mp4":  mtp.OFC_MTP_MP4,
	".m4a":  mtp.OFC_MTP_MP4,
	".3gp":  mtp.OFC_MTP_3GP,
}

// FormatForName infers the object format from the filename extension.
func FormatForName(name string) uint16 {
	if f, ok := formatByExt[strings.ToLower(path.Ext(name))]; ok {
		return f
	}
	return mtp.OFC_Undefined
}

// XferOptions parameterize Push and Pull.
type XferOptions struct {
	// Progress, when set, is wrapped around every file transferred.
	Progress mtp.ProgressFunc

	// Cancel aborts the transfer at the next chunk boundary.
	Cancel *mtp.CancellationToken
}

func (o *XferOptions) inputStream(s *mtp.FileInputStream) mtp.ObjectInputStream {
	var in mtp.ObjectInputStream = s
	if o != nil && o.Cancel != nil {
		in = mtp.WithCancel(in, o.Cancel)
	}
	if o != nil && o.Progress != nil {
		in = mtp.WithProgress(in, o.Progress)
	}
	return in
}

func (o *XferOptions) outputStream(s *mtp.FileOutputStream, total int64) mtp.ObjectOutputStream {
	var out mtp.ObjectOutputStream = s
	if o != nil && o.Cancel != nil {
		out = mtp.WithWriteCancel(out, o.Cancel)
	}
	if o != nil && o.Progress != nil {
		out = mtp.WithWriteProgress(out, total, o.Progress)
	}
	return out
}

// sessionFatal decides whether a per-file error must stop a recursive
// transfer. Everything else is logged and the walk continues.
func sessionFatal(err error) bool {
	if err == nil {
		return false
	}
	if err == mtp.ErrCancelled || err == mtp.ErrSessionBroken {
		return true
	}
	switch err.(type) {
	case mtp.SyncError, *mtp.TransportError:
		return true
	}
	return false
}

// Push copies a local file or directory tree to the device under
// remote. Per-file failures are logged and skipped; only session-fatal
// errors abort the walk.
func (f *FS) Push(local, remote string, opts *XferOptions) error {
	parent, name, err := f.ResolveParent(remote)
	if err != nil {
		return err
	}
	if name == "" {
		name = filepath.Base(local)
	}
	return f.pushInto(parent, name, local, opts)
}

func (f *FS) pushInto(parent uint32, name, local string, opts *XferOptions) error {
	st, err := os.Stat(local)
	if err != nil {
		return err
	}

	if st.IsDir() {
		dirID, err := f.mkdirIn(parent, name)
		if err != nil {
			return err
		}
		entries, err := os.ReadDir(local)
		if err != nil {
			return err
		}
		for _, e := range entries {
			err := f.pushInto(dirID, e.Name(), filepath.Join(local, e.Name()), opts)
			if err != nil {
				if sessionFatal(err) {
					return err
				}
				xferLog.Errorf("push %s: %v", e.Name(), err)
			}
		}
		return nil
	}

	return f.pushFile(parent, name, local, opts)
}

func (f *FS) pushFile(parent uint32, name, local string, opts *XferOptions) error {
	src, err := mtp.NewFileInputStream(local)
	if err != nil {
		return err
	}
	defer src.Close()

	info := &mtp.ObjectInfo{
		ObjectFormat:   FormatForName(name),
		CompressedSize: uint32(src.Size()),
		Filename:       name,
		ParentObject:   parent,
	}
	if _, _, _, err := f.c.SendObjectInfo(mtp.StorageAny, parent, info); err != nil {
		return translateResponse(err, name)
	}
	if err := f.c.SendObject(opts.inputStream(src), src.Size()); err != nil {
		return translateResponse(err, name)
	}
	return nil
}

// Pull copies the object at remote, recursively for directories, into
// the local path.
func (f *FS) Pull(remote, local string, opts *XferOptions) error {
	id, err := f.Resolve(remote)
	if err != nil {
		return err
	}
	if local == "" {
		name, err := f.c.GetObjectStringProperty(id, mtp.OPC_ObjectFileName)
		if err != nil {
			return err
		}
		local = name
	}
	return f.pullObject(id, local, opts)
}

func (f *FS) pullObject(id uint32, local string, opts *XferOptions) error {
	info, err := f.c.GetObjectInfo(id)
	if err != nil {
		return err
	}

	if info.IsAssociation() {
		if err := os.MkdirAll(local, 0755); err != nil {
			return err
		}
		return f.ListHandle(id, func(e Entry) error {
			err := f.pullObject(e.Handle, filepath.Join(local, e.Name), opts)
			if err != nil {
				if sessionFatal(err) {
					return err
				}
				xferLog.Errorf("pull %s: %v", e.Name, err)
			}
			return nil
		})
	}

	dst, err := mtp.NewFileOutputStream(local)
	if err != nil {
		return err
	}
	defer dst.Close()

	total := int64(info.CompressedSize)
	if size, err := f.c.GetObjectIntegerProperty(id, mtp.OPC_ObjectSize); err == nil {
		// The 64-bit property beats the saturating u32 field.
		total = int64(size)
	}
	return translateResponse(f.c.GetObject(id, opts.outputStream(dst, total)), local)
}

// Cat reads a whole object into memory. Meant for small payloads.
func (f *FS) Cat(remote string) ([]byte, error) {
	id, err := f.Resolve(remote)
	if err != nil {
		return nil, err
	}
	out := mtp.NewByteOutputStream()
	if err := f.c.GetObject(id, out); err != nil {
		return nil, err
	}
	return out.Data(), nil
}

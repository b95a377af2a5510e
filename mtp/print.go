package mtp

import (
	"fmt"
	"strings"
)

func hexCode(code int) string {
	return fmt.Sprintf("0x%x", code)
}

func getNames(m map[int]string, vals []uint16) string {
	r := []string{}
	for _, v := range vals {
		n, ok := m[int(v)]
		if !ok {
			n = hexCode(int(v))
		}
		r = append(r, n)
	}
	return strings.Join(r, ", ")
}

func (i *DeviceInfo) String() string {
	return fmt.Sprintf("stdv: %x, ext: %x, extv: %x, ext desc: %q fmod: %x ops: %s evs: %s "+
		"dprops: %s capfmts: %s fmts: %s manu: %q model: %q devv: %q serno: %q",
		i.StandardVersion,
		i.VendorExtensionID,
		i.VendorExtensionVersion,
		i.VendorExtensionDesc,
		i.FunctionalMode,
		getNames(OC_names, i.OperationsSupported),
		getNames(EC_names, i.EventsSupported),
		getNames(DPC_names, i.DevicePropertiesSupported),
		getNames(OFC_names, i.CaptureFormats),
		getNames(OFC_names, i.PlaybackFormats),

		i.Manufacturer,
		i.Model,
		i.DeviceVersion,
		i.SerialNumber)
}

func (si *StorageInfo) String() string {
	return fmt.Sprintf("%s (%s) %s cap: %d free: %d desc: %q label: %q",
		getName(ST_names, int(si.StorageType)),
		getName(FST_names, int(si.FilesystemType)),
		getName(AC_names, int(si.AccessCapability)),
		si.MaxCapability, si.FreeSpaceInBytes,
		si.StorageDescription, si.VolumeLabel)
}

func (oi *ObjectInfo) String() string {
	return fmt.Sprintf("%s %s %d bytes, parent 0x%x",
		oi.Filename, getName(OFC_names, int(oi.ObjectFormat)),
		oi.CompressedSize, oi.ParentObject)
}

func (e Event) String() string {
	return fmt.Sprintf("%s %v tid 0x%x",
		getName(EC_names, int(e.Code)), e.Params, e.TransactionID)
}

func hexDumpString(data []byte) string {
	var sb strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(&sb, "%04x:", off)
		for i := off; i < end; i++ {
			fmt.Fprintf(&sb, " %02x", data[i])
		}
		sb.WriteString("  ")
		for i := off; i < end; i++ {
			c := data[i]
			if c < 32 || c > 126 {
				c = '.'
			}
			sb.WriteByte(c)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

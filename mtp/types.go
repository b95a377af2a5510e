// Package mtp implements the host side of the Media Transfer Protocol:
// a little-endian tagged wire codec, PTP container framing over USB bulk
// endpoints, a single-transaction session engine, streaming object
// transfer, and an interrupt-endpoint event listener.
package mtp

import (
	"io"
	"time"
)

// Container is a decoded PTP container: one command, data phase,
// response or event.
type Container struct {
	Type          uint16
	Code          uint16
	SessionID     uint32
	TransactionID uint32
	Param         []uint32
}

type DeviceInfo struct {
	StandardVersion           uint16
	VendorExtensionID         uint32
	VendorExtensionVersion    uint16
	VendorExtensionDesc       string
	FunctionalMode            uint16
	OperationsSupported       []uint16
	EventsSupported           []uint16
	DevicePropertiesSupported []uint16
	CaptureFormats            []uint16
	PlaybackFormats           []uint16
	Manufacturer              string
	Model                     string
	DeviceVersion             string
	SerialNumber              string
}

func (i *DeviceInfo) SupportsOperation(code uint16) bool {
	for _, c := range i.OperationsSupported {
		if c == code {
			return true
		}
	}
	return false
}

type StorageInfo struct {
	StorageType        uint16
	FilesystemType     uint16
	AccessCapability   uint16
	MaxCapability      uint64
	FreeSpaceInBytes   uint64
	FreeSpaceInImages  uint32
	StorageDescription string
	VolumeLabel        string
}

func (si *StorageInfo) IsHierarchical() bool {
	return si.FilesystemType == FST_GenericHierarchical
}

func (si *StorageInfo) IsRemovable() bool {
	return si.StorageType == ST_RemovableROM ||
		si.StorageType == ST_RemovableRAM
}

type ObjectInfo struct {
	StorageID           uint32
	ObjectFormat        uint16
	ProtectionStatus    uint16
	CompressedSize      uint32
	ThumbFormat         uint16
	ThumbCompressedSize uint32
	ThumbPixWidth       uint32
	ThumbPixHeight      uint32
	ImagePixWidth       uint32
	ImagePixHeight      uint32
	ImageBitDepth       uint32
	ParentObject        uint32
	AssociationType     uint16
	AssociationDesc     uint32
	SequenceNumber      uint32
	Filename            string
	CaptureDate         time.Time
	ModificationDate    time.Time
	Keywords            string
}

func (oi *ObjectInfo) IsAssociation() bool {
	return oi.ObjectFormat == OFC_Association
}

// DataTypeSelector marks the field carrying the DTC tag of subsequent
// DataDependentType fields.
type DataTypeSelector uint16
type DataDependentType interface{}

// Decoder is implemented by types that need non-structural decoding,
// e.g. ones containing DataDependentType fields.
type Decoder interface {
	Decode(r io.Reader) error
}

type Encoder interface {
	Encode(w io.Writer) error
}

type PropDescRangeForm struct {
	MinimumValue DataDependentType
	MaximumValue DataDependentType
	StepSize     DataDependentType
}

type PropDescEnumForm struct {
	Values []DataDependentType
}

type DevicePropDescFixed struct {
	DevicePropertyCode  uint16
	DataType            DataTypeSelector
	GetSet              uint8
	FactoryDefaultValue DataDependentType
	CurrentValue        DataDependentType
	FormFlag            uint8
}

type DevicePropDesc struct {
	DevicePropDescFixed
	Form interface{}
}

type ObjectPropDescFixed struct {
	ObjectPropertyCode  uint16
	DataType            DataTypeSelector
	GetSet              uint8
	FactoryDefaultValue DataDependentType
	GroupCode           uint32
	FormFlag            uint8
}

type ObjectPropDesc struct {
	ObjectPropDescFixed
	Form interface{}
}

type Uint32Array struct {
	Values []uint32
}

type Uint16Array struct {
	Values []uint16
}

type Uint64Value struct {
	Value uint64
}

type StringValue struct {
	Value string
}

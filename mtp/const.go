package mtp

// PTP/MTP code tables. Wire values follow the ISO 15740 / MTP 1.1
// numbering and must not be changed.

// Reserved object and storage handles.
const (
	HandleDevice uint32 = 0x00000000
	HandleRoot   uint32 = 0xFFFFFFFF
	StorageAny   uint32 = 0x00000000
	StorageAll   uint32 = 0xFFFFFFFF
)

// Container types.
const (
	USB_CONTAINER_UNDEFINED = 0
	USB_CONTAINER_COMMAND   = 1
	USB_CONTAINER_DATA      = 2
	USB_CONTAINER_RESPONSE  = 3
	USB_CONTAINER_EVENT     = 4
)

var USB_names = map[int]string{
	0: "UNDEFINED",
	1: "COMMAND",
	2: "DATA",
	3: "RESPONSE",
	4: "EVENT",
}

// Class-specific control requests on the MTP interface.
const (
	USB_REQ_CancelRequest     = 0x64
	USB_REQ_GetExtendedEvent  = 0x65
	USB_REQ_DeviceReset       = 0x66
	USB_REQ_GetDeviceStatus   = 0x67
)

// Operation codes.
const OC_Undefined = 0x1000
const OC_GetDeviceInfo = 0x1001
const OC_OpenSession = 0x1002
const OC_CloseSession = 0x1003
const OC_GetStorageIDs = 0x1004
const OC_GetStorageInfo = 0x1005
const OC_GetNumObjects = 0x1006
const OC_GetObjectHandles = 0x1007
const OC_GetObjectInfo = 0x1008
const OC_GetObject = 0x1009
const OC_GetThumb = 0x100A
const OC_DeleteObject = 0x100B
const OC_SendObjectInfo = 0x100C
const OC_SendObject = 0x100D
const OC_FormatStore = 0x100F
const OC_ResetDevice = 0x1010
const OC_GetDevicePropDesc = 0x1014
const OC_GetDevicePropValue = 0x1015
const OC_SetDevicePropValue = 0x1016
const OC_ResetDevicePropValue = 0x1017
const OC_MoveObject = 0x1019
const OC_CopyObject = 0x101A
const OC_GetPartialObject = 0x101B

const OC_MTP_GetObjectPropsSupported = 0x9801
const OC_MTP_GetObjectPropDesc = 0x9802
const OC_MTP_GetObjectPropValue = 0x9803
const OC_MTP_SetObjectPropValue = 0x9804
const OC_MTP_GetObjPropList = 0x9805
const OC_MTP_GetObjectReferences = 0x9810
const OC_MTP_SetObjectReferences = 0x9811

var OC_names = map[int]string{
	0x1000: "Undefined",
	0x1001: "GetDeviceInfo",
	0x1002: "OpenSession",
	0x1003: "CloseSession",
	0x1004: "GetStorageIDs",
	0x1005: "GetStorageInfo",
	0x1006: "GetNumObjects",
	0x1007: "GetObjectHandles",
	0x1008: "GetObjectInfo",
	0x1009: "GetObject",
	0x100A: "GetThumb",
	0x100B: "DeleteObject",
	0x100C: "SendObjectInfo",
	0x100D: "SendObject",
	0x100F: "FormatStore",
	0x1010: "ResetDevice",
	0x1014: "GetDevicePropDesc",
	0x1015: "GetDevicePropValue",
	0x1016: "SetDevicePropValue",
	0x1017: "ResetDevicePropValue",
	0x1019: "MoveObject",
	0x101A: "CopyObject",
	0x101B: "GetPartialObject",
	0x9801: "MTP_GetObjectPropsSupported",
	0x9802: "MTP_GetObjectPropDesc",
	0x9803: "MTP_GetObjectPropValue",
	0x9804: "MTP_SetObjectPropValue",
	0x9805: "MTP_GetObjPropList",
	0x9810: "MTP_GetObjectReferences",
	0x9811: "MTP_SetObjectReferences",
}

// Response codes.
const RC_Undefined = 0x2000
const RC_OK = 0x2001
const RC_GeneralError = 0x2002
const RC_SessionNotOpen = 0x2003
const RC_InvalidTransactionID = 0x2004
const RC_OperationNotSupported = 0x2005
const RC_ParameterNotSupported = 0x2006
const RC_IncompleteTransfer = 0x2007
const RC_InvalidStorageID = 0x2008
const RC_InvalidObjectHandle = 0x2009
const RC_DevicePropNotSupported = 0x200A
const RC_InvalidObjectFormatCode = 0x200B
const RC_StoreFull = 0x200C
const RC_ObjectWriteProtected = 0x200D
const RC_StoreReadOnly = 0x200E
const RC_AccessDenied = 0x200F
const RC_NoThumbnailPresent = 0x2010
const RC_SelfTestFailed = 0x2011
const RC_PartialDeletion = 0x2012
const RC_StoreNotAvailable = 0x2013
const RC_SpecificationByFormatUnsupported = 0x2014
const RC_NoValidObjectInfo = 0x2015
const RC_DeviceBusy = 0x2019
const RC_InvalidParentObject = 0x201A
const RC_InvalidDevicePropFormat = 0x201B
const RC_InvalidDevicePropValue = 0x201C
const RC_InvalidParameter = 0x201D
const RC_SessionAlreadyOpened = 0x201E
const RC_TransactionCanceled = 0x201F

const RC_MTP_Invalid_ObjectPropCode = 0xA801
const RC_MTP_Invalid_ObjectProp_Format = 0xA802
const RC_MTP_Invalid_ObjectProp_Value = 0xA803
const RC_MTP_ObjectProp_Not_Supported = 0xA80A

var RC_names = map[int]string{
	0x2000: "Undefined",
	0x2001: "OK",
	0x2002: "GeneralError",
	0x2003: "SessionNotOpen",
	0x2004: "InvalidTransactionID",
	0x2005: "OperationNotSupported",
	0x2006: "ParameterNotSupported",
	0x2007: "IncompleteTransfer",
	0x2008: "InvalidStorageID",
	0x2009: "InvalidObjectHandle",
	0x200A: "DevicePropNotSupported",
	0x200B: "InvalidObjectFormatCode",
	0x200C: "StoreFull",
	0x200D: "ObjectWriteProtected",
	0x200E: "StoreReadOnly",
	0x200F: "AccessDenied",
	0x2010: "NoThumbnailPresent",
	0x2011: "SelfTestFailed",
	0x2012: "PartialDeletion",
	0x2013: "StoreNotAvailable",
	0x2014: "SpecificationByFormatUnsupported",
	0x2015: "NoValidObjectInfo",
	0x2019: "DeviceBusy",
	0x201A: "InvalidParentObject",
	0x201B: "InvalidDevicePropFormat",
	0x201C: "InvalidDevicePropValue",
	0x201D: "InvalidParameter",
	0x201E: "SessionAlreadyOpened",
	0x201F: "TransactionCanceled",
	0xA801: "MTP_Invalid_ObjectPropCode",
	0xA802: "MTP_Invalid_ObjectProp_Format",
	0xA803: "MTP_Invalid_ObjectProp_Value",
	0xA80A: "MTP_ObjectProp_Not_Supported",
}

// Event codes.
const EC_Undefined = 0x4000
const EC_CancelTransaction = 0x4001
const EC_ObjectAdded = 0x4002
const EC_ObjectRemoved = 0x4003
const EC_StoreAdded = 0x4004
const EC_StoreRemoved = 0x4005
const EC_DevicePropChanged = 0x4006
const EC_ObjectInfoChanged = 0x4007
const EC_DeviceInfoChanged = 0x4008
const EC_RequestObjectTransfer = 0x4009
const EC_StoreFull = 0x400A
const EC_DeviceReset = 0x400B
const EC_StorageInfoChanged = 0x400C
const EC_CaptureComplete = 0x400D
const EC_UnreportedStatus = 0x400E

const EC_MTP_ObjectPropChanged = 0xC801
const EC_MTP_ObjectPropDescChanged = 0xC802
const EC_MTP_ObjectReferencesChanged = 0xC803

var EC_names = map[int]string{
	0x4000: "Undefined",
	0x4001: "CancelTransaction",
	0x4002: "ObjectAdded",
	0x4003: "ObjectRemoved",
	0x4004: "StoreAdded",
	0x4005: "StoreRemoved",
	0x4006: "DevicePropChanged",
	0x4007: "ObjectInfoChanged",
	0x4008: "DeviceInfoChanged",
	0x4009: "RequestObjectTransfer",
	0x400A: "StoreFull",
	0x400B: "DeviceReset",
	0x400C: "StorageInfoChanged",
	0x400D: "CaptureComplete",
	0x400E: "UnreportedStatus",
	0xC801: "MTP_ObjectPropChanged",
	0xC802: "MTP_ObjectPropDescChanged",
	0xC803: "MTP_ObjectReferencesChanged",
}

// Data type codes.
const DTC_UNDEF = 0x0000
const DTC_INT8 = 0x0001
const DTC_UINT8 = 0x0002
const DTC_INT16 = 0x0003
const DTC_UINT16 = 0x0004
const DTC_INT32 = 0x0005
const DTC_UINT32 = 0x0006
const DTC_INT64 = 0x0007
const DTC_UINT64 = 0x0008
const DTC_INT128 = 0x0009
const DTC_UINT128 = 0x000A
const DTC_ARRAY_MASK = 0x4000
const DTC_STR = 0xFFFF

var DTC_names = map[int]string{
	0x0000: "UNDEF",
	0x0001: "INT8",
	0x0002: "UINT8",
	0x0003: "INT16",
	0x0004: "UINT16",
	0x0005: "INT32",
	0x0006: "UINT32",
	0x0007: "INT64",
	0x0008: "UINT64",
	0x0009: "INT128",
	0x000A: "UINT128",
	0xFFFF: "STR",
}

// Object format codes.
const OFC_Undefined = 0x3000
const OFC_Association = 0x3001
const OFC_Script = 0x3002
const OFC_Text = 0x3004
const OFC_HTML = 0x3005
const OFC_WAV = 0x3008
const OFC_MP3 = 0x3009
const OFC_AVI = 0x300A
const OFC_MPEG = 0x300B
const OFC_EXIF_JPEG = 0x3801
const OFC_BMP = 0x3804
const OFC_GIF = 0x3807
const OFC_JFIF = 0x3808
const OFC_PNG = 0x380B
const OFC_TIFF = 0x380D
const OFC_MTP_WMA = 0xB901
const OFC_MTP_OGG = 0xB902
const OFC_MTP_AAC = 0xB903
const OFC_MTP_FLAC = 0xB906
const OFC_MTP_MP4 = 0xB982
const OFC_MTP_3GP = 0xB984
const OFC_MTP_WMV = 0xB981
const OFC_MTP_AbstractAudioAlbum = 0xBA03
const OFC_MTP_AbstractAudioVideoPlaylist = 0xBA05

var OFC_names = map[int]string{
	0x3000: "Undefined",
	0x3001: "Association",
	0x3002: "Script",
	0x3004: "Text",
	0x3005: "HTML",
	0x3008: "WAV",
	0x3009: "MP3",
	0x300A: "AVI",
	0x300B: "MPEG",
	0x3801: "EXIF_JPEG",
	0x3804: "BMP",
	0x3807: "GIF",
	0x3808: "JFIF",
	0x380B: "PNG",
	0x380D: "TIFF",
	0xB901: "MTP_WMA",
	0xB902: "MTP_OGG",
	0xB903: "MTP_AAC",
	0xB906: "MTP_FLAC",
	0xB981: "MTP_WMV",
	0xB982: "MTP_MP4",
	0xB984: "MTP_3GP",
	0xBA03: "MTP_AbstractAudioAlbum",
	0xBA05: "MTP_AbstractAudioVideoPlaylist",
}

// Object property codes.
const OPC_StorageID = 0xDC01
const OPC_ObjectFormat = 0xDC02
const OPC_ProtectionStatus = 0xDC03
const OPC_ObjectSize = 0xDC04
const OPC_ObjectFileName = 0xDC07
const OPC_DateCreated = 0xDC08
const OPC_DateModified = 0xDC09
const OPC_ParentObject = 0xDC0B
const OPC_PersistantUniqueObjectIdentifier = 0xDC41
const OPC_Name = 0xDC44
const OPC_DateAdded = 0xDC4E

// GetObjPropList wildcard for the property parameter.
const OPC_All = 0xFFFFFFFF

var OPC_names = map[int]string{
	0xDC01: "StorageID",
	0xDC02: "ObjectFormat",
	0xDC03: "ProtectionStatus",
	0xDC04: "ObjectSize",
	0xDC07: "ObjectFileName",
	0xDC08: "DateCreated",
	0xDC09: "DateModified",
	0xDC0B: "ParentObject",
	0xDC41: "PersistantUniqueObjectIdentifier",
	0xDC44: "Name",
	0xDC4E: "DateAdded",
}

// Device property codes used by the engine.
const DPC_Undefined = 0x5000
const DPC_BatteryLevel = 0x5001
const DPC_DateTime = 0x5011
const DPC_MTP_SynchronizationPartner = 0xD401
const DPC_MTP_DeviceFriendlyName = 0xD402

var DPC_names = map[int]string{
	0x5000: "Undefined",
	0x5001: "BatteryLevel",
	0x5011: "DateTime",
	0xD401: "MTP_SynchronizationPartner",
	0xD402: "MTP_DeviceFriendlyName",
}

// Association types.
const AT_Undefined = 0x0000
const AT_GenericFolder = 0x0001

var AT_names = map[int]string{
	0x0000: "Undefined",
	0x0001: "GenericFolder",
}

// Storage types.
const ST_Undefined = 0x0000
const ST_FixedROM = 0x0001
const ST_RemovableROM = 0x0002
const ST_FixedRAM = 0x0003
const ST_RemovableRAM = 0x0004

var ST_names = map[int]string{
	0x0000: "Undefined",
	0x0001: "FixedROM",
	0x0002: "RemovableROM",
	0x0003: "FixedRAM",
	0x0004: "RemovableRAM",
}

// Filesystem types.
const FST_Undefined = 0x0000
const FST_GenericFlat = 0x0001
const FST_GenericHierarchical = 0x0002
const FST_DCF = 0x0003

var FST_names = map[int]string{
	0x0000: "Undefined",
	0x0001: "GenericFlat",
	0x0002: "GenericHierarchical",
	0x0003: "DCF",
}

// Access capabilities.
const AC_ReadWrite = 0x0000
const AC_ReadOnly = 0x0001
const AC_ReadOnly_with_Object_Deletion = 0x0002

var AC_names = map[int]string{
	0x0000: "ReadWrite",
	0x0001: "ReadOnly",
	0x0002: "ReadOnly_with_Object_Deletion",
}

// Device property form flags and get/set bits.
const DPFF_None = 0x00
const DPFF_Range = 0x01
const DPFF_Enumeration = 0x02

var DPFF_names = map[int]string{
	0x00: "None",
	0x01: "Range",
	0x02: "Enumeration",
}

const DPGS_Get = 0x00
const DPGS_GetSet = 0x01

var DPGS_names = map[int]string{
	0x00: "Get",
	0x01: "GetSet",
}

func getName(m map[int]string, code int) string {
	if n, ok := m[code]; ok {
		return n
	}
	return hexCode(code)
}

package pciref

// Vendor is a GPU vendor supported by the fleet API.
type Vendor string

const (
	// VendorAMD is Advanced Micro Devices.
	VendorAMD Vendor = "AMD"
	// VendorNVIDIA is NVIDIA Corporation.
	VendorNVIDIA Vendor = "NVIDIA"
	// VendorIntel is Intel Corporation.
	VendorIntel Vendor = "INTEL"

	// VendorUnknown is reported when no supported GPU was found. It is never returned by VendorFromName.
	VendorUnknown Vendor = "UNKNOWN"
)

// vendorNames maps the vendor names of the PCI reference database to supported vendors.
var vendorNames = map[string]Vendor{
	"Advanced Micro Devices, Inc. [AMD/ATI]": VendorAMD,
	"NVIDIA Corporation":                     VendorNVIDIA,
	"Intel Corporation":                      VendorIntel,
}

// VendorFromName maps a reference database vendor name to a supported vendor.
// It returns false for any vendor the fleet API does not support.
func VendorFromName(name string) (Vendor, bool) {
	v, ok := vendorNames[name]
	return v, ok
}

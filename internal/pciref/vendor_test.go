package pciref_test

import (
	"testing"

	"github.com/exalsius/node-agent/internal/pciref"
	"github.com/stretchr/testify/assert"
)

func TestVendorFromName(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		name string

		want   pciref.Vendor
		wantOK bool
	}{
		"AMD":    {name: "Advanced Micro Devices, Inc. [AMD/ATI]", want: pciref.VendorAMD, wantOK: true},
		"NVIDIA": {name: "NVIDIA Corporation", want: pciref.VendorNVIDIA, wantOK: true},
		"Intel":  {name: "Intel Corporation", want: pciref.VendorIntel, wantOK: true},

		"ASPEED is not supported":        {name: "ASPEED Technology, Inc."},
		"Matrox is not supported":        {name: "Matrox Electronics Systems Ltd."},
		"Partial name is not supported":  {name: "NVIDIA"},
		"Empty name is not supported":    {name: ""},
		"Unknown sentinel is not a name": {name: "UNKNOWN"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, ok := pciref.VendorFromName(tc.name)
			assert.Equal(t, tc.wantOK, ok, "VendorFromName supported state is unexpected")
			assert.Equal(t, tc.want, got, "VendorFromName returned an unexpected vendor")
		})
	}
}

package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProvisionData_Validate(t *testing.T) {
	tests := map[string]struct {
		data  *ProvisionData
		valid bool
	}{
		"cm3 with payload": {
			data:  &ProvisionData{Backend: BackendCM3, CM3: &CM3Provision{URL: "http://images/cm3.img"}},
			valid: true,
		},
		"maas with payload": {
			data:  &ProvisionData{Backend: BackendMAAS, MAAS: &MAASProvision{Distro: "jammy"}},
			valid: true,
		},
		"zapper with payload": {
			data:  &ProvisionData{Backend: BackendZapper, Zapper: &ZapperProvision{Preset: "desktop"}},
			valid: true,
		},
		"multi with children": {
			data: &ProvisionData{Backend: BackendMulti, Multi: &MultiProvision{
				Jobs: []JobSpec{{Queue: "rpi4"}, {Queue: "rpi5"}},
			}},
			valid: true,
		},
		"unknown backend": {
			data:  &ProvisionData{Backend: "vmware"},
			valid: false,
		},
		"backend without payload": {
			data:  &ProvisionData{Backend: BackendMuxPi},
			valid: false,
		},
		"payload disagrees with backend": {
			data:  &ProvisionData{Backend: BackendCM3, MAAS: &MAASProvision{Distro: "jammy"}},
			valid: false,
		},
		"two payloads": {
			data: &ProvisionData{
				Backend: BackendCM3,
				CM3:     &CM3Provision{URL: "http://images/cm3.img"},
				Zapper:  &ZapperProvision{Preset: "desktop"},
			},
			valid: false,
		},
		"multi without children": {
			data:  &ProvisionData{Backend: BackendMulti, Multi: &MultiProvision{}},
			valid: false,
		},
		"multi child without queue": {
			data: &ProvisionData{Backend: BackendMulti, Multi: &MultiProvision{
				Jobs: []JobSpec{{}},
			}},
			valid: false,
		},
		"nested multi child": {
			data: &ProvisionData{Backend: BackendMulti, Multi: &MultiProvision{
				Jobs: []JobSpec{{
					Queue: "rpi4",
					ProvisionData: &ProvisionData{
						Backend: BackendMulti,
						Multi:   &MultiProvision{Jobs: []JobSpec{{Queue: "x"}}},
					},
				}},
			}},
			valid: false,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.data.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestProvisionData_ValidateReportsEveryViolation(t *testing.T) {
	data := &ProvisionData{
		Backend: "vmware",
		CM3:     &CM3Provision{URL: "http://images/cm3.img"},
		Zapper:  &ZapperProvision{Preset: "desktop"},
	}
	err := data.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "vmware")
	assert.Contains(t, err.Error(), "cm3")
	assert.Contains(t, err.Error(), "zapper")
}

func TestProvisionData_IsMulti(t *testing.T) {
	assert.False(t, (*ProvisionData)(nil).IsMulti())
	assert.False(t, (&ProvisionData{Backend: BackendCM3}).IsMulti())
	assert.True(t, (&ProvisionData{Backend: BackendMulti}).IsMulti())
}

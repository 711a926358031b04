package api

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ProvisionBackend discriminates the provisioning payload variants.
type ProvisionBackend string

const (
	BackendCM3       ProvisionBackend = "cm3"
	BackendMAAS      ProvisionBackend = "maas"
	BackendMuxPi     ProvisionBackend = "muxpi"
	BackendZapper    ProvisionBackend = "zapper"
	BackendOEMScript ProvisionBackend = "oemscript"
	BackendMulti     ProvisionBackend = "multi"
)

// ProvisionData is a closed union: Backend names the variant and exactly the
// matching variant field must be set. Jobs with the multi backend are parents
// of a device-allocation fan-out and carry the child specs inline.
type ProvisionData struct {
	Backend   ProvisionBackend    `json:"backend"`
	CM3       *CM3Provision       `json:"cm3,omitempty"`
	MAAS      *MAASProvision      `json:"maas,omitempty"`
	MuxPi     *MuxPiProvision     `json:"muxpi,omitempty"`
	Zapper    *ZapperProvision    `json:"zapper,omitempty"`
	OEMScript *OEMScriptProvision `json:"oemscript,omitempty"`
	Multi     *MultiProvision     `json:"multi,omitempty"`
}

type CM3Provision struct {
	URL string `json:"url"`
}

type MAASProvision struct {
	Distro   string `json:"distro"`
	UserData string `json:"user_data,omitempty"`
}

type MuxPiProvision struct {
	URL          string `json:"url"`
	MediaAddress string `json:"media_address,omitempty"`
}

type ZapperProvision struct {
	Preset string `json:"preset"`
	URL    string `json:"url,omitempty"`
}

type OEMScriptProvision struct {
	URL   string `json:"url"`
	Token string `json:"token,omitempty"`
}

type MultiProvision struct {
	Jobs []JobSpec `json:"jobs"`
}

// IsMulti reports whether the payload requests a multi-device allocation.
func (p *ProvisionData) IsMulti() bool {
	return p != nil && p.Backend == BackendMulti
}

// Validate checks that the discriminator names a known backend and that
// exactly the matching variant is populated. All violations are reported.
func (p *ProvisionData) Validate() error {
	var result *multierror.Error

	variants := map[ProvisionBackend]bool{
		BackendCM3:       p.CM3 != nil,
		BackendMAAS:      p.MAAS != nil,
		BackendMuxPi:     p.MuxPi != nil,
		BackendZapper:    p.Zapper != nil,
		BackendOEMScript: p.OEMScript != nil,
		BackendMulti:     p.Multi != nil,
	}

	populated, ok := variants[p.Backend]
	if !ok {
		result = multierror.Append(result, fmt.Errorf("unknown provisioning backend %q", p.Backend))
	} else if !populated {
		result = multierror.Append(result, fmt.Errorf("provisioning backend %q declared but its payload is missing", p.Backend))
	}
	for backend, set := range variants {
		if set && backend != p.Backend {
			result = multierror.Append(result, fmt.Errorf("payload for backend %q set but backend is %q", backend, p.Backend))
		}
	}

	if p.Backend == BackendMulti && p.Multi != nil {
		if len(p.Multi.Jobs) == 0 {
			result = multierror.Append(result, fmt.Errorf("multi-device payload declares no jobs"))
		}
		for i, child := range p.Multi.Jobs {
			if child.Queue == "" {
				result = multierror.Append(result, fmt.Errorf("multi-device child %d has no queue", i))
			}
			if child.ProvisionData.IsMulti() {
				result = multierror.Append(result, fmt.Errorf("multi-device child %d is itself multi-device", i))
			}
		}
	}

	return result.ErrorOrNil()
}

package api

// InfoContentType is the media type clients send in Accept to request the
// relay information document.
const InfoContentType = "application/nostr+json"

// Info is the NIP-11 relay information document.
type Info struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	PubKey        string `json:"pubkey,omitempty"`
	Contact       string `json:"contact,omitempty"`
	SupportedNIPs []int  `json:"supported_nips"`
	Software      string `json:"software"`
	Version       string `json:"version"`
}

// DefaultInfo describes this relay when nothing is configured.
func DefaultInfo() Info {
	return Info{
		Name:          "ephemeral-relay",
		Description:   "In-memory relay. Stored events are discarded on a fixed schedule.",
		SupportedNIPs: []int{1, 11, 20},
		Software:      "https://github.com/ephemeral/relay",
		Version:       "dev",
	}
}

func (i Info) withDefaults() Info {
	def := DefaultInfo()
	if i.Name == "" {
		i.Name = def.Name
	}
	if i.Description == "" {
		i.Description = def.Description
	}
	if i.SupportedNIPs == nil {
		i.SupportedNIPs = def.SupportedNIPs
	}
	if i.Software == "" {
		i.Software = def.Software
	}
	if i.Version == "" {
		i.Version = def.Version
	}
	return i
}

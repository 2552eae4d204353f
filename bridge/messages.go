// Package bridge is the request/response channel between the editor and
// the page daemon. Requests are JSON objects discriminated by "action";
// only getChannelNames carries a meaningful response body.
//
// The daemon serves the channel over loopback HTTP (Server); the editor
// talks to it with Client. Delivery order across the boundary is not
// guaranteed, and the editor never has more than one request in flight
// per user action.
package bridge

// Action names a message kind.
type Action string

const (
	// ActionGetChannelNames asks the page for the visible channel names.
	ActionGetChannelNames Action = "getChannelNames"
	// ActionSettingsUpdated tells the page the stored settings changed.
	ActionSettingsUpdated Action = "settingsUpdated"
)

// Request is the envelope for every message.
type Request struct {
	Action Action `json:"action"`
}

// ChannelNamesResponse answers ActionGetChannelNames. Names are in DOM
// order and not deduplicated.
type ChannelNamesResponse struct {
	ChannelNames []string `json:"channelNames"`
}

// Tab describes the page the daemon is attached to.
type Tab struct {
	URL string `json:"url"`
}

package session

// State is the lifecycle state of the supervised session.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateAwaitingScan State = "awaiting_scan"
	StateReady        State = "ready"
	StateDisconnected State = "disconnected"
)

// inFlight reports whether a handshake is under way or complete, i.e. a new
// Initialize must not allocate another handle.
func (s State) inFlight() bool {
	return s == StateInitializing || s == StateAwaitingScan || s == StateReady
}

// Status is a point-in-time view for the control surface.
type Status struct {
	IsReady         bool   `json:"isReady"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	IsInitializing  bool   `json:"isInitializing"`
	IdentityName    string `json:"user,omitempty"`
	IdentityPhone   string `json:"phone,omitempty"`
	HasQRCode       bool   `json:"hasQRCode"`
	State           State  `json:"state"`
}

// snapshot is the immutable state published after every transition so that
// readers never contend with the control path.
type snapshot struct {
	state    State
	identity *Identity
}

func project(snap *snapshot, hasQR bool) Status {
	if snap == nil {
		return Status{State: StateIdle, HasQRCode: hasQR}
	}
	st := Status{
		State:          snap.state,
		IsReady:        snap.state == StateReady,
		IsInitializing: snap.state == StateInitializing || snap.state == StateAwaitingScan,
		HasQRCode:      hasQR,
	}
	if snap.identity != nil {
		st.IsAuthenticated = true
		st.IdentityName = snap.identity.DisplayName
		st.IdentityPhone = snap.identity.PhoneNumber
	}
	return st
}

package roster

import (
	"fmt"

	"github.com/connectra/meeting-client/internal/domain"
)

const hostSuffix = " (Host)"

// Naming is what a viewer knows when labelling remote participants.
type Naming struct {
	ViewerIsHost bool
	CreatorName  string
	// Presence resolves side-channel announced names, may be nil.
	Presence func(uid domain.UID) (name string, isHost bool, ok bool)
}

// Label returns the display label of the remote participant at index (in
// first-seen order) and whether it should be shown as host.
func (n Naming) Label(p domain.RemoteParticipant, index int) (string, bool) {
	if p.DisplayName != "" {
		return withHost(p.DisplayName, p.IsHost), p.IsHost
	}
	if n.Presence != nil {
		if name, isHost, ok := n.Presence(p.UID); ok && name != "" {
			return withHost(name, isHost), isHost
		}
	}
	// A non-host viewer assumes the first remote participant is the host.
	if !n.ViewerIsHost && index == 0 {
		creator := n.CreatorName
		if creator == "" {
			creator = "Lecturer"
		}
		return creator + hostSuffix, true
	}
	return fmt.Sprintf("Participant %d", index+1), false
}

// LocalLabel labels the local participant.
func LocalLabel(u *domain.CurrentUser, fallback string, viewerIsHost bool) string {
	if u != nil {
		return withHost(u.UserName, u.IsHost)
	}
	return withHost(fallback, viewerIsHost)
}

func withHost(name string, isHost bool) string {
	if isHost {
		return name + hostSuffix
	}
	return name
}

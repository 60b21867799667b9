// Package guard gates mutating panel operations behind the read-only flag.
package guard

import (
	"fmt"

	"cinefm/backend/internal/types"
)

// ReadOnlyMessage is the fixed message returned for a read-only panel.
func ReadOnlyMessage(panel types.Panel) string {
	return fmt.Sprintf("Panel %s is set read-only", panel)
}

// Guard runs action unless the panel is read-only, in which case action is
// never called and the read-only message is returned instead.
func Guard(readOnly bool, panel types.Panel, action func() string) string {
	if readOnly {
		return ReadOnlyMessage(panel)
	}
	return action()
}

// Allowed reports whether a mutation on panel may proceed, with the message to
// show when it may not.
func Allowed(readOnly bool, panel types.Panel) (bool, string) {
	if readOnly {
		return false, ReadOnlyMessage(panel)
	}
	return true, ""
}

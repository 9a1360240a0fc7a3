package shell

import "fmt"

// State is the lifecycle position of a Controller.
type State int

const (
	StateUnregistered State = iota
	StateInstalling
	StateInstalledWaiting
	StateActivating
	StateActive
	// StateRedundant marks a controller superseded by a newer active version.
	StateRedundant
)

var stateNames = map[State]string{
	StateUnregistered:     "unregistered",
	StateInstalling:       "installing",
	StateInstalledWaiting: "installed_waiting",
	StateActivating:       "activating",
	StateActive:           "active",
	StateRedundant:        "redundant",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText lets State render as its name in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown controller state %q", text)
}

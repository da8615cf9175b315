package pharmacystate

import "strings"

type State struct {
	Name string
}

func (s State) Code() string {
	return s.Name
}

func (s State) Label() string {
	if len(s.Name) == 0 {
		return ""
	}
	return strings.ToUpper(s.Name[:1]) + s.Name[1:]
}

type Enum struct {
	Pending   State
	Prepared  State
	Delivered State
}

var States = Enum{
	Pending:   State{Name: "pending"},
	Prepared:  State{Name: "prepared"},
	Delivered: State{Name: "delivered"},
}

var All = []State{
	States.Pending,
	States.Prepared,
	States.Delivered,
}

// Normalize maps the absent state to pending; the two are semantically
// equal everywhere in the pharmacy stage.
func Normalize(code string) string {
	if code == "" {
		return States.Pending.Code()
	}
	return code
}

// ByName returns the state for a given name, or nil if not found
func ByName(name string) *State {
	for _, s := range All {
		if s.Name == name {
			return &s
		}
	}
	return nil
}

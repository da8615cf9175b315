package pharmacy

import (
	"strings"

	"github.com/medqueue/pharmacy/pkg/enums/pharmacystate"
)

// Stats are the aggregate pharmacy-state counts over the whole worklist,
// never over a search-filtered view.
type Stats struct {
	Pending   int `json:"pending"`
	Prepared  int `json:"prepared"`
	Delivered int `json:"delivered"`
}

// View is what the render boundary consumes: the search-scoped ordered rows
// plus the full-worklist stats.
type View struct {
	Prescriptions []Prescription `json:"prescriptions"`
	Stats         Stats          `json:"stats"`
}

// Project derives the view for a search term from a worklist snapshot. It is
// a pure function: recomputed after every change, it holds no state of its
// own. Name matching is a case-insensitive substring test; snapshot order is
// preserved.
func Project(snapshot []Prescription, term string) View {
	term = strings.ToLower(term)

	rows := make([]Prescription, 0, len(snapshot))
	var stats Stats

	for _, p := range snapshot {
		switch pharmacystate.Normalize(p.PharmacyState) {
		case pharmacystate.States.Prepared.Code():
			stats.Prepared++
		case pharmacystate.States.Delivered.Code():
			stats.Delivered++
		default:
			stats.Pending++
		}

		if term == "" || strings.Contains(strings.ToLower(p.Name), term) {
			rows = append(rows, p)
		}
	}

	return View{Prescriptions: rows, Stats: stats}
}

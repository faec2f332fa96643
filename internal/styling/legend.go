package styling

import "strconv"

// LegendThresholds are the lower bounds of the legend rows.
var LegendThresholds = []int{0, 1, 2, 3, 4, 5}

// LegendEntry is one legend row.
type LegendEntry struct {
	Threshold int    `json:"threshold"`
	Color     string `json:"color"`
	Label     string `json:"label"`
}

// LegendControl is the legend box drawn on the map.
type LegendControl struct {
	Title    string        `json:"title"`
	Position string        `json:"position"`
	Entries  []LegendEntry `json:"entries"`
}

// Legend builds one row per threshold. A row is colored like a quake one
// unit above its threshold and labelled "k–k+1"; the last row is "k+".
func Legend() []LegendEntry {
	entries := make([]LegendEntry, 0, len(LegendThresholds))
	for i, k := range LegendThresholds {
		label := strconv.Itoa(k) + "+"
		if i+1 < len(LegendThresholds) {
			label = strconv.Itoa(k) + "–" + strconv.Itoa(LegendThresholds[i+1])
		}
		entries = append(entries, LegendEntry{
			Threshold: k,
			Color:     ChooseColor(float64(k + 1)),
			Label:     label,
		})
	}
	return entries
}

// NewLegendControl returns the legend as placed on the map.
func NewLegendControl() LegendControl {
	return LegendControl{
		Title:    "Magnitude",
		Position: "bottomleft",
		Entries:  Legend(),
	}
}

// Package measure maps user-facing measure names and aliases to the
// configuration records that define them.
package measure

// Config is a measure definition loaded from a JSON file in the measures
// directory. Records are read-only snapshots; the pipeline transports
// filter strings verbatim and never parses them.
type Config struct {
	Code           string   `json:"measure_code"`
	Name           string   `json:"measure_name"`
	InfoType       string   `json:"info_type"`
	Formula        string   `json:"formula"`
	Filters        []string `json:"filters"`
	DefaultGroupBy []string `json:"default_group_by"`
	Aliases        []string `json:"aliases"`
}

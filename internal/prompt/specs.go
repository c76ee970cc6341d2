package prompt

// tableBackground describes the risk measures table for the oracle. Column
// names here mirror the warehouse schema the generated SQL runs against.
const tableBackground = `The target table contains risk measures and metrics data.
Columns:
- info_type: type of information/measure (e.g., CE, EAD, LGD)
- measure_code: measure code identifier
- report_aspect: reporting aspect (e.g., CREDIT, CREDIT_ALD)
- info_value: numeric value for the measure
- obligor_rdm_id: obligor identifier
- product_group_code: product group code
- legal_entity: legal entity identifier
- is_internal: internal/external flag
Extracting a measure requires the filter attributes declared in its
configuration (typically info_type, measure_code, and report_aspect), and
aggregation uses the configured formula (typically SUM(info_value)).`

// Interpret extracts measures, group-by dimensions, and filter pairs from
// the raw user query.
var Interpret = Spec{
	Purpose:    "Identify the measures, group-by dimensions, and filter conditions in a natural-language analytical query.",
	Background: tableBackground,
	OutputFields: []Field{
		{Name: "measures", Type: "[]string", Required: true, Description: "Measure codes being requested; prefer codes (CE) over display names (Current Exposure)."},
		{Name: "group_by", Type: "[]string", Required: true, Description: "Column names to group results by."},
		{Name: "filters", Type: "[]{column,value}", Required: true, Description: "Filter conditions the user stated explicitly."},
	},
	Constraints: []string{
		"Use only column names from the background schema.",
		"Do not invent measures or filters the user did not ask for.",
	},
	Rules: []string{
		"Keywords like sum, total, average indicate a measure.",
		"Phrases like 'by obligor' or 'per product' indicate group-by dimensions.",
		"Phrases like 'where', 'for', 'only' indicate filters.",
	},
	OutputFormat: "JSON only.",
	Examples: []Example{
		{
			Input:  `{"query":"Show me current exposure by obligor"}`,
			Output: `{"measures":["CE"],"group_by":["obligor_rdm_id"],"filters":[]}`,
		},
		{
			Input:  `{"query":"Total CE and EAD for internal products grouped by legal entity"}`,
			Output: `{"measures":["CE","EAD"],"group_by":["legal_entity"],"filters":[{"column":"is_internal","value":"Y"}]}`,
		},
	},
}

// Rewrite restates the user's query with the identified measures and
// dimensions made explicit, for human review. Measure configurations are
// deliberately not supplied at this point: they are resolved only after the
// reviewer confirms the restatement.
var Rewrite = Spec{
	Purpose:    "Rewrite an analytical query so the requested measures, grouping, and filters are explicit and unambiguous.",
	Background: tableBackground,
	OutputFields: []Field{
		{Name: "rewritten", Type: "string", Required: true, Description: "The rewritten query, natural but technically precise."},
	},
	Constraints: []string{
		"Mention every identified measure and every group-by dimension.",
		"Do not add filters or measures that were not identified.",
		"Keep it a single short paragraph of plain prose, not SQL.",
	},
	OutputFormat: "Plain text only, no markdown.",
}

// GenerateSQL produces the final SELECT statement from the confirmed query
// and the resolved measure configurations.
var GenerateSQL = Spec{
	Purpose:    "Generate a single SQL SELECT statement for the confirmed query using the supplied measure configurations.",
	Background: tableBackground,
	OutputFields: []Field{
		{Name: "sql", Type: "string", Required: true, Description: "The SELECT statement."},
	},
	Constraints: []string{
		"SELECT, FROM, WHERE, GROUP BY, ORDER BY only; no data modification of any kind.",
		"Take WHERE conditions ONLY from each measure configuration's filters array, plus the user's stated filters; never invent filter values.",
		"Apply the formula from the measure configuration (e.g., SUM(info_value)) with a clear column alias.",
		"GROUP BY the configuration's default_group_by columns plus the requested dimensions.",
		"Combine all filters with AND.",
	},
	OutputFormat: "Return ONLY the SQL statement, no explanations.",
	Examples: []Example{
		{
			Input: `{"confirmed_query":"Calculate Current Exposure (CE) by summing info_value where info_type='CE' and measure_code='CE', grouped by obligor.",` +
				`"measure_configs":{"CE":{"formula":"SUM(info_value)","filters":["info_type='CE'","measure_code='CE'"],"default_group_by":["obligor_rdm_id"]}},` +
				`"dimensions":["obligor_rdm_id"]}`,
			Output: "SELECT obligor_rdm_id, SUM(info_value) AS current_exposure\nFROM risk_measures\nWHERE info_type='CE' AND measure_code='CE'\nGROUP BY obligor_rdm_id",
		},
	},
}

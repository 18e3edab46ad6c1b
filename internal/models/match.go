package models

// MatchRequest is everything the matcher needs for one reconciliation.
type MatchRequest struct {
	JobID             string                  `json:"job_id"`
	BO                Dataset                 `json:"bo"`
	Partner           Dataset                 `json:"partner"`
	BOKeyColumn       string                  `json:"bo_key_column"`
	PartnerKeyColumn  string                  `json:"partner_key_column"`
	LogicType         ReconciliationLogicType `json:"logic_type"`
	Rules             []CorrespondenceRule    `json:"correspondence_rules"`
	ComparisonColumns []ComparisonColumn      `json:"comparison_columns"`
}

// Mismatch pairs a BO row with the partner rows it was compared against.
type Mismatch struct {
	BO       Row    `json:"bo"`
	Partners []Row  `json:"partners"`
	Action   string `json:"action"`
	Reason   string `json:"reason,omitempty"`
}

// MatchResponse is the matcher's outcome.
type MatchResponse struct {
	TotalMatches        int        `json:"total_matches"`
	TotalMismatches     int        `json:"total_mismatches"`
	TotalBOOnly         int        `json:"total_bo_only"`
	TotalPartnerOnly    int        `json:"total_partner_only"`
	TotalBORecords      int        `json:"total_bo_records"`
	TotalPartnerRecords int        `json:"total_partner_records"`
	Matches             []Row      `json:"matches"`
	Mismatches          []Mismatch `json:"mismatches"`
	BOOnly              []Row      `json:"bo_only"`
	PartnerOnly         []Row      `json:"partner_only"`
}

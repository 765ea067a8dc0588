package dto

// ActionUsage is the used/limit pair for one AI action. A nil limit means
// unlimited.
type ActionUsage struct {
	Used  int  `json:"used"`
	Limit *int `json:"limit"`
}

// UsageStats reports a tenant's monthly AI consumption.
type UsageStats struct {
	Corrections   ActionUsage `json:"corrections"`
	Generations   ActionUsage `json:"generations"`
	ClassAnalyses ActionUsage `json:"class_analyses"`
	Interviews    ActionUsage `json:"interviews"`
}

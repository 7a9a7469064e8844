package classify

// Built-in classification tables. Facility codes follow RFC5424:
// 4 security/authorization, 13 log audit, 16 local0.

// IdentityUserDefaults returns the table for identity-provider user events.
func IdentityUserDefaults() Table {
	return NewTable(map[string]Class{
		"CODE_TO_TOKEN":       {Priority: 14, Facility: 4},
		"CODE_TO_TOKEN_ERROR": {Priority: 14, Facility: 4},
		"LOGIN":               {Priority: 14, Facility: 4},
		"LOGIN_ERROR":         {Priority: 14, Facility: 4},
		"LOGOUT":              {Priority: 14, Facility: 4},
		"LOGOUT_ERROR":        {Priority: 14, Facility: 4},
	}, DefaultClass)
}

// IdentityAdminDefaults returns the table for identity-provider admin events.
func IdentityAdminDefaults() Table {
	return NewTable(map[string]Class{
		"CREATE": {Priority: 4, Facility: 13},
		"UPDATE": {Priority: 4, Facility: 13},
		"DELETE": {Priority: 4, Facility: 13},
		"ACTION": {Priority: 5, Facility: 13},
	}, DefaultClass)
}

// ApplicationDefaults returns the table for application history events.
func ApplicationDefaults() Table {
	return NewTable(map[string]Class{
		// Security-critical changes (audit).
		"proj-del":     {Priority: 4, Facility: 13},
		"user-created": {Priority: 4, Facility: 13},
		"user-deleted": {Priority: 4, Facility: 13},
		"user-updated": {Priority: 5, Facility: 13},
		// Important configuration changes (local0).
		"proj-new":             {Priority: 6, Facility: 16},
		"kube-release-rollout": {Priority: 6, Facility: 16},
		// State management (local0).
		"proj-upd":               {Priority: 7, Facility: 16},
		"project-upd-floodwatch": {Priority: 7, Facility: 16},
		"email-tmpl-new":         {Priority: 7, Facility: 16},
		"email-tmpl-del":         {Priority: 7, Facility: 16},
	}, DefaultClass)
}

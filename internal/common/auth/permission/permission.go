package permission

// Permission names an action principals may be granted, e.g., "submit_jobs".
// The mapping from permissions to groups/scopes/claims is configuration.
type Permission string

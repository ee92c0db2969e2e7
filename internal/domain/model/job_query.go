//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

// JobListOptions groups parameters for listing jobs with optional filters.
type JobListOptions struct {
	OwnerID   *string   // Optional filter by owner
	State     *JobState // Optional filter by lifecycle state
	Tag       *string   // Optional filter: job must carry this tag
	SortOrder string    // Sort order by submission time: "asc", "desc" (default: "desc")
	Limit     int       // Pagination limit
	Offset    int       // Pagination offset
}

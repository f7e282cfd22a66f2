package jobs

import (
	"strings"
)

// ParseRoute extracts the job ID and action from a URL path like /api/runs/{id}/{action}.
// apiPrefix should be like "/api/runs/", idPrefix should be like "run-".
// Returns the normalized job ID and action, or ok=false if the path is invalid.
func ParseRoute(path, apiPrefix, idPrefix string) (jobID, action string, ok bool) {
	parts := strings.Split(strings.TrimPrefix(path, apiPrefix), "/")
	if len(parts) < 2 || parts[0] == "" {
		return "", "", false
	}

	jobID = parts[0]
	if !strings.HasPrefix(jobID, idPrefix) {
		jobID = idPrefix + jobID
	}
	return jobID, parts[1], true
}

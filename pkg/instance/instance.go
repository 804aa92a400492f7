package instance

import "os"

// GetID returns this process's identifier for startup logs, so overlapping
// API and cron replicas can be told apart. Defaults to worker-0 outside an
// orchestrated deploy.
func GetID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	return "worker-0"
}

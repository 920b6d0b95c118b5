// Command healthcheck probes the proxy's admin health endpoint and exits
// non-zero when it does not answer 200. It is meant for container health checks.
package main

import (
	"net/http"
	"os"
)

func main() {
	addr := "http://localhost:8080"
	if v := os.Getenv("HTTPMOCKER_HEALTH_ADDR"); v != "" {
		addr = v
	}
	resp, err := http.Get(addr + "/__admin/health")
	if err != nil || resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

// Package instance names the running process for log correlation.
package instance

import (
	"os"
	"strconv"
	"sync"
)

var (
	once sync.Once
	id   string
)

// GetID returns the first of DYNO, WORKER_ID or K_REVISION that is set,
// falling back to host name and pid. The value is computed once per process.
func GetID() string {
	once.Do(func() { id = resolve(os.Getenv, os.Hostname, os.Getpid()) })
	return id
}

func resolve(getenv func(string) string, hostname func() (string, error), pid int) string {
	for _, key := range []string{"DYNO", "WORKER_ID", "K_REVISION"} {
		if v := getenv(key); v != "" {
			return v
		}
	}
	host, err := hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return host + "-" + strconv.Itoa(pid)
}

package shared

import "fmt"

// JobLockKey builds redis keys guarding periodic jobs across workers.
func JobLockKey(job string) string {
	return fmt.Sprintf("projectledger:job:%s:lock", job)
}

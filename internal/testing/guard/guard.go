package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("MEETLEDGER_TEST_MODE") == "" {
			_ = os.Setenv("MEETLEDGER_TEST_MODE", "1")
		}
	})
}

package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("AUTHHUB_TEST_MODE") == "" {
			_ = os.Setenv("AUTHHUB_TEST_MODE", "1")
		}
	})
}

package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("KIRANAFLOW_TEST_MODE") == "" {
			_ = os.Setenv("KIRANAFLOW_TEST_MODE", "1")
		}
	})
}

package metrics

import (
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMain(m *testing.M) {
	// Parallel tests read the package-level vectors, so set them up once first.
	if err := Init(prometheus.NewRegistry(), "test"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

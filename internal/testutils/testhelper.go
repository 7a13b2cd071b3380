package testutils

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// TestHelper bundles the per-test logger
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug-level logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// CreateMockPeripheral starts a peripheral builder for address
func CreateMockPeripheral(address string) *PeripheralBuilder {
	return NewPeripheralBuilder(address)
}

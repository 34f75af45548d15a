package errutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsConfiguration(t *testing.T) {
	missing := &ConfigurationMissingError{Key: "databases.warehouse"}
	invalid := &ConfigurationInvalidError{Key: "modules.crawler.database", Reason: "must be one of: warehouse, mongodb"}

	assert.True(t, IsConfiguration(missing))
	assert.True(t, IsConfiguration(invalid))

	// Wrapped errors still classify.
	assert.True(t, IsConfiguration(fmt.Errorf("loading: %w", missing)))

	assert.False(t, IsConfiguration(ErrDataNotAvailableYet))
	assert.False(t, IsConfiguration(ErrDataAlreadyExist))
	assert.False(t, IsConfiguration(nil))
}

func TestConfigurationErrorsNameTheKey(t *testing.T) {
	missing := &ConfigurationMissingError{Key: "modules.metatags"}
	assert.Contains(t, missing.Error(), "modules.metatags")

	invalid := &ConfigurationInvalidError{Key: "urlsets", Reason: "unknown urlset blog"}
	assert.Contains(t, invalid.Error(), "unknown urlset blog")
}

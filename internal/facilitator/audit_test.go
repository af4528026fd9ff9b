package facilitator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuditorClassify(t *testing.T) {
	a := &Auditor{}

	assert.Equal(t, BucketDisabled, a.classify(false, false, false))
	assert.Equal(t, BucketDisabled, a.classify(false, true, true))
	assert.Equal(t, BucketInternalOnly, a.classify(true, true, false))
	assert.Equal(t, BucketIncluded, a.classify(true, false, true))
	assert.Equal(t, BucketInvalid, a.classify(true, false, false))
}

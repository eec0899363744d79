package awserr_test

import (
	"errors"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/channel/internal/awserr"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want channel.ErrorClass
	}{
		{"nil", nil, channel.ClassNone},
		{"network error", errors.New("dial tcp: i/o timeout"), channel.ClassTransient},
		{"throttling", &smithy.GenericAPIError{Code: "Throttling", Message: "Maximum sending rate exceeded."}, channel.ClassThrottled},
		{"listed permanent code", &smithy.GenericAPIError{Code: "EndpointDisabled", Fault: smithy.FaultUnknown}, channel.ClassPermanent},
		{"client fault", &smithy.GenericAPIError{Code: "InvalidParameter", Fault: smithy.FaultClient}, channel.ClassPermanent},
		{"server fault", &smithy.GenericAPIError{Code: "InternalError", Fault: smithy.FaultServer}, channel.ClassTransient},
		{"unknown fault", &smithy.GenericAPIError{Code: "Mystery"}, channel.ClassTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, channel.Classify(awserr.Classify(tt.err, "EndpointDisabled")))
		})
	}
}

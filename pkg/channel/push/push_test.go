package push_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/channel/push"
)

const endpoint = "arn:aws:sns:us-east-1:123456789012:endpoint/APNS/app/3b7e1c"

type mockSNS struct {
	mock.Mock
}

func (m *mockSNS) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sns.PublishOutput)
	return out, args.Error(1)
}

func payload() channel.PushPayload {
	return channel.PushPayload{Title: "Security", Body: "2FA enabled", Data: map[string]string{"kind": "2fa"}}
}

func TestAdapter_Envelope(t *testing.T) {
	t.Parallel()

	for _, sandbox := range []bool{false, true} {
		a := push.New(&mockSNS{}, push.Config{Sandbox: sandbox})
		raw, err := a.Envelope(payload())
		require.NoError(t, err)

		var env map[string]string
		require.NoError(t, json.Unmarshal([]byte(raw), &env))
		assert.Equal(t, "2FA enabled", env["default"])

		apsKey := "APNS"
		if sandbox {
			apsKey = "APNS_SANDBOX"
		}
		var aps map[string]any
		require.NoError(t, json.Unmarshal([]byte(env[apsKey]), &aps))
		alert := aps["aps"].(map[string]any)["alert"].(map[string]any)
		assert.Equal(t, "Security", alert["title"])
		assert.Equal(t, "2fa", aps["data"].(map[string]any)["kind"])

		var fcm map[string]any
		require.NoError(t, json.Unmarshal([]byte(env["GCM"]), &fcm))
		assert.Equal(t, "2FA enabled", fcm["notification"].(map[string]any)["body"])
	}
}

func TestAdapter_Send(t *testing.T) {
	t.Parallel()

	t.Run("publishes to the endpoint", func(t *testing.T) {
		t.Parallel()

		client := &mockSNS{}
		client.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
			return aws.ToString(in.TargetArn) == endpoint &&
				aws.ToString(in.MessageStructure) == "json" &&
				in.PhoneNumber == nil
		})).Return(&sns.PublishOutput{MessageId: aws.String("push-1")}, nil).Once()

		receipt, err := push.New(client, push.Config{}).Send(context.Background(), channel.Message{To: endpoint, Payload: payload()})
		require.NoError(t, err)
		assert.Equal(t, "push-1", receipt.ProviderRef)
		client.AssertExpectations(t)
	})

	t.Run("invalid endpoint", func(t *testing.T) {
		t.Parallel()

		_, err := push.New(&mockSNS{}, push.Config{}).Send(context.Background(), channel.Message{To: "device-token", Payload: payload()})
		assert.ErrorIs(t, err, push.ErrInvalidEndpoint)
		assert.Equal(t, channel.ClassPermanent, channel.Classify(err))
	})

	tests := []struct {
		name string
		err  error
		want channel.ErrorClass
	}{
		{"endpoint disabled", &smithy.GenericAPIError{Code: "EndpointDisabled"}, channel.ClassPermanent},
		{"throttled", &smithy.GenericAPIError{Code: "Throttling"}, channel.ClassThrottled},
		{"network", context.DeadlineExceeded, channel.ClassTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := &mockSNS{}
			client.On("Publish", mock.Anything, mock.Anything).Return(nil, tt.err).Once()
			_, err := push.New(client, push.Config{}).Send(context.Background(), channel.Message{To: endpoint, Payload: payload()})
			assert.Equal(t, tt.want, channel.Classify(err))
		})
	}
}

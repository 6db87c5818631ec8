package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-admin/internal/domain"
)

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "session.logged_out", RoutingKey(domain.EventLoggedOut))
	assert.Equal(t, "session.login_succeeded", RoutingKey(domain.EventLoginSucceeded))
}

func TestDecodeSessionEvent(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		want    domain.SessionEventType
	}{
		{
			name: "valid",
			body: `{"type":"invalidated","client_id":"c1","instance_id":"i1","reason":"expired","occurred_at":"2024-03-01T12:00:00Z"}`,
			want: domain.EventInvalidated,
		},
		{name: "malformed_json", body: `{"type":`, wantErr: true},
		{name: "missing_client", body: `{"type":"logged_out"}`, wantErr: true},
		{name: "missing_type", body: `{"client_id":"c1"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := DecodeSessionEvent([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, event.Type)
			assert.Equal(t, "c1", event.ClientID)
		})
	}
}

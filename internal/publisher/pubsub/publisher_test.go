package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type event struct {
	ID string `json:"id"`
}

func (e event) Attributes() map[string]string {
	return map[string]string{"event_type": "notice.registered"}
}

func TestMessageCarriesAttributes(t *testing.T) {
	t.Parallel()

	msg, err := message("notices", event{ID: "e1"})
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"e1"}`, string(msg.Data))
	require.Equal(t, map[string]string{"topic": "notices", "event_type": "notice.registered"}, msg.Attributes)
}

func TestMessageRejectsUnmarshalable(t *testing.T) {
	t.Parallel()

	_, err := message("notices", make(chan int))
	require.Error(t, err)
}

func TestPublishWithoutClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "notices", event{})
	require.Error(t, err)
}

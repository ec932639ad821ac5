//go:build integration

package events

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestIntegrationPublish(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}

	client, err := NewClient(context.Background(), url, os.Getenv("NATS_TOKEN"), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()

	received := make(chan []byte, 1)
	sub, err := client.conn.Subscribe(SubjectCallCompleted, func(msg *nats.Msg) { received <- msg.Data })
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()
	require.NoError(t, client.conn.Flush())

	require.NoError(t, client.Publish(SubjectCallCompleted, CallCompleted{CallID: "CA-int"}))

	select {
	case data := <-received:
		var got CallCompleted
		require.NoError(t, sonic.Unmarshal(data, &got))
		assert.Equal(t, "CA-int", got.CallID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

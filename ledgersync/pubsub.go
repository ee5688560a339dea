package ledgersync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"

	"bitbucket.org/imfsl/ledger_backend/config"
)

// PublishSyncRun hands a queued batch run to the Pub/Sub dispatch queue.
// Without a configured Pub/Sub project the run is processed in-process,
// which keeps local development working with the same code path.
func PublishSyncRun(ctx context.Context, payload SyncPubSubPayload) error {
	client := config.GetPubSubClient()
	if client == nil {
		go func() {
			if err := processSyncRun(context.Background(), payload); err != nil {
				config.LogError(config.GetLogger(), "ledgersync", "PublishSyncRun",
					"inline sync run failed", payload.RunId, err)
			}
		}()
		return nil
	}

	topicName := strings.TrimSpace(os.Getenv("SYNC_TOPIC"))
	if topicName == "" {
		topicName = "ledger-sync"
	}
	topic, err := config.CreateTopicIfNotExists(ctx, topicName)
	if err != nil {
		return err
	}

	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler receives batch runs from the push subscription.
// Always acks (204): a run that cannot even be decoded will never become
// processable, and run-level failures are recorded on the run itself.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.RunId == 0 {
			c.Status(204)
			return
		}

		if err := processSyncRun(c.Request.Context(), payload); err != nil {
			config.LogError(config.GetLogger(), "ledgersync", "PubSubPushHandler",
				"sync run processing failed", payload.RunId, err)
		}
		c.Status(204)
	}
}

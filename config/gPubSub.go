package config

import (
	"context"
	"log"
	"os"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

var (
	pubsubClient *pubsub.Client
	pubsubOnce   sync.Once
)

// GetPubSubClient returns a lazily created Pub/Sub client. Returns nil when
// no project id is configured, callers must handle nil (local dev mode).
func GetPubSubClient() *pubsub.Client {
	pubsubOnce.Do(func() {
		projectID := os.Getenv("PUBSUB_PROJECT_ID")
		if projectID == "" {
			projectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
		}
		if projectID == "" {
			projectID = os.Getenv("GCP_PROJECT")
		}
		if projectID == "" {
			log.Printf("no pubsub project id configured; pubsub disabled")
			return
		}

		var opts []option.ClientOption
		if credsJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credsJSON != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(credsJSON)))
		}

		client, err := pubsub.NewClient(context.Background(), projectID, opts...)
		if err != nil {
			log.Printf("failed to create pubsub client: %v", err)
			return
		}
		pubsubClient = client
	})
	return pubsubClient
}

// CreateTopicIfNotExists ensures the topic exists and returns it.
func CreateTopicIfNotExists(ctx context.Context, topicID string) (*pubsub.Topic, error) {
	client := GetPubSubClient()
	if client == nil {
		return nil, nil
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			return nil, err
		}
	}
	return topic, nil
}

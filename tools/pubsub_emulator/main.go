package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func main() {
	ctx := context.Background()

	projectID := flag.String("project", "tilefinder-emulator", "emulator project")
	host := flag.String("host", "localhost:8085", "emulator host")
	topic := flag.String("topic", "tilefinder-products", "topic receiving the selected products")
	subscription := flag.String("subscription", "tilefinder-products", "subscription to the topic (empty: none)")
	flag.Parse()

	os.Setenv("PUBSUB_EMULATOR_HOST", *host)

	log.Print("New client for project " + *projectID)
	client, err := pubsub.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatalf("pubsub.NewClient: %v", err)
	}
	defer client.Close()

	log.Print("Create Topic : " + *topic)
	if _, err = client.CreateTopic(ctx, *topic); err != nil && status.Code(err) != codes.AlreadyExists {
		log.Fatalf("pubsub.CreateTopic: %v", err)
	}

	if *subscription != "" {
		log.Print("Create Subscription : " + *subscription)
		if _, err = client.CreateSubscription(ctx, *subscription, pubsub.SubscriptionConfig{
			Topic:       client.Topic(*topic),
			AckDeadline: 10 * time.Second,
		}); err != nil && status.Code(err) != codes.AlreadyExists {
			log.Fatalf("CreateSubscription: %v", err)
		}
	}

	log.Print("Done!")
}

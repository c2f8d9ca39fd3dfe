// Package azure builds Azure Storage clients with the retry posture shared
// by every binary.
package azure

import (
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

var retryableStatusCodes = []int{408, 429, 500, 502, 503, 504}

// NewTableService creates a table service client from the connection string.
// Individual table clients come from its NewClient.
func NewTableService(connStr string) (*aztables.ServiceClient, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   retryableStatusCodes,
			},
		},
	}
	return aztables.NewServiceClientFromConnectionString(connStr, &opts)
}

// NewQueue creates a queue client from the connection string. Queues carry
// low-urgency nudges, so retries are more patient than on tables.
func NewQueue(connStr, queue string) (*azqueue.QueueClient, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   retryableStatusCodes,
			},
		},
	}
	return azqueue.NewQueueClientFromConnectionString(connStr, queue, &opts)
}

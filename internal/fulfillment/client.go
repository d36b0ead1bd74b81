package fulfillment

import (
	"context"

	"github.com/google/uuid"
)

// Decision is the fulfillment provider's answer to a purchase request.
type Decision struct {
	Accepted bool
	RemoteID string
	Message  string
}

// Client connects to the third-party API that delivers data bundles to a
// beneficiary phone number.
type Client interface {
	Purchase(ctx context.Context, network, beneficiary, packageID string) (Decision, error)
	AccountBalance(ctx context.Context) (int64, error)
}

// StaticClient simulates a provider that accepts every request. Used in
// development mode and tests.
type StaticClient struct {
	// Fail makes Purchase report a rejection, for exercising the
	// pending-order path.
	Fail bool
	// BalancePesewas is echoed by AccountBalance.
	BalancePesewas int64
}

// Purchase approves the request with a synthetic remote id.
func (c StaticClient) Purchase(_ context.Context, _, _, _ string) (Decision, error) {
	if c.Fail {
		return Decision{Accepted: false, Message: "provider rejected order"}, nil
	}
	return Decision{Accepted: true, RemoteID: uuid.NewString(), Message: "processing"}, nil
}

// AccountBalance reports the configured reseller float.
func (c StaticClient) AccountBalance(_ context.Context) (int64, error) {
	return c.BalancePesewas, nil
}

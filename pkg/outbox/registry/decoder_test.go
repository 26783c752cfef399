package registry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox/payloads"
)

func TestDecoderRegistryVersions(t *testing.T) {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventProvisioningRequested, 1, JSONDecoder[payloads.ProvisioningRequestedEvent](nil))

	orderID := uuid.New()
	input := json.RawMessage(`{"order_id":"` + orderID.String() + `","reason":"payment"}`)
	output, err := reg.Decode(enums.EventProvisioningRequested, 1, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	job, ok := output.(payloads.ProvisioningRequestedEvent)
	if !ok || job.OrderID != orderID || job.Reason != payloads.ProvisioningReasonPayment {
		t.Fatalf("unexpected output %+v", output)
	}

	if _, err := reg.Decode(enums.EventProvisioningRequested, 2, input); err == nil {
		t.Fatalf("expected error for unregistered version")
	}
}

func TestJSONDecoderRunsCheck(t *testing.T) {
	errMissing := errors.New("order_id missing")
	decode := JSONDecoder(func(job payloads.ProvisioningRequestedEvent) error {
		if job.OrderID == uuid.Nil {
			return errMissing
		}
		return nil
	})

	if _, err := decode(json.RawMessage(`{"reason":"payment"}`)); !errors.Is(err, errMissing) {
		t.Fatalf("expected check error, got %v", err)
	}
	if _, err := decode(json.RawMessage(`not json`)); err == nil {
		t.Fatalf("expected unmarshal error")
	}
}

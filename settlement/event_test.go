package settlement

import (
	"errors"
	"testing"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType string
		wantErr  error
	}{
		{
			name:     "captured",
			body:     `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","amount":1000000,"method":"upi"}}}}`,
			wantType: EventPaymentCaptured,
		},
		{
			name:     "failed",
			body:     `{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","error_code":"BAD_REQUEST_ERROR","error_description":"declined"}}}}`,
			wantType: EventPaymentFailed,
		},
		{
			name:     "refund",
			body:     `{"event":"refund.processed","payload":{"refund":{"entity":{"id":"rfnd_1","payment_id":"pay_1","amount":400000,"status":"processed"}}}}`,
			wantType: EventRefundProcessed,
		},
		{
			name:     "unknown type is not an error",
			body:     `{"event":"order.paid","payload":{}}`,
			wantType: "order.paid",
		},
		{name: "malformed json", body: `{"event":`, wantErr: ErrValidation},
		{name: "missing event", body: `{"payload":{}}`, wantErr: ErrValidation},
		{name: "missing payment entity", body: `{"event":"payment.captured","payload":{}}`, wantErr: ErrValidation},
		{
			name:    "missing order id",
			body:    `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","amount":100}}}}`,
			wantErr: ErrValidation,
		},
		{
			name:    "zero refund",
			body:    `{"event":"refund.processed","payload":{"refund":{"entity":{"id":"rfnd_1","payment_id":"pay_1","amount":0}}}}`,
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if ev.Type() != tt.wantType {
				t.Errorf("Expected type %s, got %s", tt.wantType, ev.Type())
			}
		})
	}
}

func TestParseEvent_Entities(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"event":"refund.processed","payload":{"refund":{"entity":{"id":"rfnd_9","payment_id":"pay_3","amount":250,"status":"processed"}}}}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	refund, ok := ev.(RefundProcessed)
	if !ok {
		t.Fatalf("Expected RefundProcessed, got %T", ev)
	}
	if refund.Refund.ID != "rfnd_9" || refund.Refund.PaymentID != "pay_3" || refund.Refund.Amount != 250 {
		t.Errorf("Unexpected refund entity %+v", refund.Refund)
	}
	if len(refund.Raw) == 0 {
		t.Error("Expected raw payload to be kept")
	}
}

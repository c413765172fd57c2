package streaming

import "testing"

func TestEncodeDecodePendingSync(t *testing.T) {
	payload, err := Encode(Message{
		Type:     MessageTypePendingSync,
		TxHash:   "0xabc",
		OwnerRef: "user-1",
		Attempt:  2,
		TraceID:  "4bf92f3577b34da6a3ce929d0e0e4736",
	})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(payload)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Type != MessageTypePendingSync || decoded.TxHash != "0xabc" || decoded.Attempt != 2 {
		t.Fatalf("unexpected message %+v", decoded)
	}
	if decoded.OwnerRef != "user-1" || decoded.TraceID == "" {
		t.Fatalf("unexpected message %+v", decoded)
	}
}

func TestEncodeDecodeReconcile(t *testing.T) {
	payload, err := Encode(Message{Type: MessageTypeReconcile, CampaignID: 7, Attempt: 1})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(payload)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Type != MessageTypeReconcile || decoded.CampaignID != 7 {
		t.Fatalf("unexpected message %+v", decoded)
	}
}

func TestEncodeValidation(t *testing.T) {
	cases := []Message{
		{},
		{Type: "unknown"},
		{Type: MessageTypePendingSync},
		{Type: MessageTypeReconcile},
	}
	for i, msg := range cases {
		if _, err := Encode(msg); err == nil {
			t.Fatalf("case %d: expected encode error", i)
		}
	}
}

func TestDecodeValidation(t *testing.T) {
	cases := [][]byte{
		[]byte("not json"),
		[]byte(`{}`),
		[]byte(`{"type":"pending_sync"}`),
		[]byte(`{"type":"reconcile"}`),
	}
	for i, payload := range cases {
		if _, err := Decode(payload); err == nil {
			t.Fatalf("case %d: expected decode error", i)
		}
	}
}

package transport

import (
	"testing"
	"time"
)

func TestDecodeTwist(t *testing.T) {
	cmd, err := DecodeTwist([]byte(`{"linear": 0.8, "angular": -0.25}`))
	if err != nil {
		t.Fatalf("DecodeTwist: %v", err)
	}
	if cmd.Linear != 0.8 || cmd.Angular != -0.25 {
		t.Fatalf("DecodeTwist = %+v, want {0.8 -0.25}", cmd)
	}
}

func TestDecodeTwistMalformed(t *testing.T) {
	for _, payload := range []string{
		"",
		"not json",
		`{"linear": "fast"}`,
	} {
		if _, err := DecodeTwist([]byte(payload)); err == nil {
			t.Fatalf("DecodeTwist(%q) succeeded, want error", payload)
		}
	}
}

func TestDecodeTwistMissingFieldsDefaultToZero(t *testing.T) {
	cmd, err := DecodeTwist([]byte(`{"linear": 1.0}`))
	if err != nil {
		t.Fatalf("DecodeTwist: %v", err)
	}
	if cmd.Linear != 1.0 || cmd.Angular != 0 {
		t.Fatalf("DecodeTwist = %+v, want {1 0}", cmd)
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{Broker: "tcp://127.0.0.1:1883"}
	opts.applyDefaults()

	if opts.ClientID == "" {
		t.Fatal("default client id is empty")
	}
	if opts.ConnectTimeout <= 0 || opts.PublishTimeout <= 0 {
		t.Fatalf("default timeouts not applied: %+v", opts)
	}
	if opts.ConnectTimeout != 5*time.Second {
		t.Fatalf("connect timeout = %v, want 5s", opts.ConnectTimeout)
	}
}

func TestDialRejectsEmptyBroker(t *testing.T) {
	if _, err := Dial(Options{}, nil); err == nil {
		t.Fatal("Dial with empty broker succeeded, want error")
	}
}

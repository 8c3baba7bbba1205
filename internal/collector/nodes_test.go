package collector

import (
	"testing"

	"github.com/nerrad567/thermolink/internal/status"
)

func TestNodes_HandleMessage(t *testing.T) {
	relay := &recordingRelay{}
	n := NewNodes(relay)

	payload := []byte(`{"status":"online","node_id":"greenhouse","boot_id":"b1","timestamp":"2026-01-02T03:04:05Z","sensor_ready":true,"link_up":true,"connection":"connected","queue_depth":1,"counters":{"sampled":5,"sent":4}}`)
	if err := n.HandleMessage("thermolink/status/greenhouse", payload); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	entry, ok := n.Get("greenhouse")
	if !ok {
		t.Fatal("node not stored")
	}
	if entry.Status.Status != status.Online || entry.Status.Counters == nil || entry.Status.Counters.Sent != 4 {
		t.Errorf("entry = %+v", entry)
	}
	if entry.LastSeen.IsZero() {
		t.Error("LastSeen not set")
	}
	if relay.count() != 1 {
		t.Errorf("broadcasts = %d, want 1", relay.count())
	}
}

func TestNodes_HandleMessage_Errors(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"foreign topic", "thermolink/system/collector", `{"status":"online"}`},
		{"nested topic", "thermolink/status/a/b", `{"status":"online"}`},
		{"bad json", "thermolink/status/n1", `{not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNodes(nil)
			if err := n.HandleMessage(tt.topic, []byte(tt.payload)); err == nil {
				t.Error("HandleMessage() error = nil")
			}
			if len(n.All()) != 0 {
				t.Error("rejected message stored a node")
			}
		})
	}
}

func TestNodes_OfflineAndClear(t *testing.T) {
	n := NewNodes(nil)

	// The will message published by the broker on an unexpected disconnect.
	will := []byte(`{"status":"offline","client_id":"thermolink","reason":"unexpected_disconnect","timestamp":"2026-01-02T03:04:05Z"}`)
	if err := n.HandleMessage("thermolink/status/n1", will); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if e, _ := n.Get("n1"); e.Status.Status != status.Offline || e.Status.Reason != "unexpected_disconnect" {
		t.Errorf("entry = %+v", e)
	}

	if err := n.HandleMessage("thermolink/status/n1", nil); err != nil {
		t.Fatalf("HandleMessage(empty) error = %v", err)
	}
	if _, ok := n.Get("n1"); ok {
		t.Error("empty retained payload did not clear the node")
	}
}

func TestNodes_AllSorted(t *testing.T) {
	n := NewNodes(nil)
	for _, id := range []string{"c", "a", "b"} {
		n.Update(id, status.Message{Status: status.Online})
	}

	all := n.All()
	if len(all) != 3 || all[0].NodeID != "a" || all[1].NodeID != "b" || all[2].NodeID != "c" {
		t.Errorf("All() = %+v", all)
	}
}

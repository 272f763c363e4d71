package broker

import "testing"

func TestQueueTableCoversAllQueues(t *testing.T) {
	for _, name := range []string{QueueIncoming, QueueOutgoing, QueueCreateTicket, QueueNotifications} {
		cfg, ok := Queues[name]
		if !ok {
			t.Errorf("queue %q missing from the declaration table", name)
			continue
		}
		if cfg.Name != name {
			t.Errorf("queue %q declared under name %q", name, cfg.Name)
		}
		// Ordering depends on a single partition per queue.
		if cfg.Partitions != 1 {
			t.Errorf("queue %q has %d partitions, want 1", name, cfg.Partitions)
		}
		if cfg.RetentionMs <= 0 {
			t.Errorf("queue %q has no retention", name)
		}
	}
	if len(Queues) != 4 {
		t.Errorf("declaration table has %d entries, want 4", len(Queues))
	}
}

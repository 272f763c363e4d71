package broker

// Queue names used by the pipeline. Each queue is a durable topic with a
// single partition so a consumer sees messages in delivery order.
const (
	QueueIncoming      = "incoming"
	QueueOutgoing      = "outgoing"
	QueueCreateTicket  = "create-ticket"
	QueueNotifications = "notifications"
)

// QueueConfig describes one durable queue.
type QueueConfig struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	RetentionMs       int64
}

// Queues is the fixed set declared once per connection and re-asserted on
// reconnect.
var Queues = map[string]QueueConfig{
	QueueIncoming: {
		Name:              QueueIncoming,
		Partitions:        1,
		ReplicationFactor: 1,
		RetentionMs:       604800000, // 7 days
	},
	QueueOutgoing: {
		Name:              QueueOutgoing,
		Partitions:        1,
		ReplicationFactor: 1,
		RetentionMs:       604800000, // 7 days
	},
	QueueCreateTicket: {
		Name:              QueueCreateTicket,
		Partitions:        1,
		ReplicationFactor: 1,
		RetentionMs:       2592000000, // 30 days
	},
	QueueNotifications: {
		Name:              QueueNotifications,
		Partitions:        1,
		ReplicationFactor: 1,
		RetentionMs:       604800000, // 7 days
	},
}

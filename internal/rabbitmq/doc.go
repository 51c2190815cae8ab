// Package rabbitmq provides the broker client used by every role of the
// expedition coordination protocol.
//
// This package includes:
//   - ConnectionManager: opens a connection and channel with the topic
//     exchange declared, retrying a bounded number of times
//   - TopologyManager: declares queues and their routing-key bindings
//   - Publisher: sends persistent JSON messages, either on an existing channel
//     or on a short-lived connection of its own
//   - SupervisedConsumer: consumes one queue and reconnects after broker
//     outages until it is stopped
//
// Connections and channels are never shared: each SupervisedConsumer and each
// one-shot publish owns the pair it opened.
package rabbitmq

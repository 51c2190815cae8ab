// Package roles implements the three participants of the expedition bus.
//
// An Administrator broadcasts to teams, suppliers or everyone and monitors all
// traffic. A Team orders equipment and listens for confirmations. A Supplier
// serves orders for the equipment types it is configured for and confirms
// each one back to the ordering team.
//
// Every role owns its workers. Each worker is a rabbitmq.SupervisedConsumer
// with its own connection and channel, so a role survives broker outages
// without intervention and stops cooperatively within the idle timeout.
package roles

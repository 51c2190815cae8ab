// Package contracts defines the payloads exchanged on the system bus and the
// routing-key scheme that carries them.
//
// There are three payloads:
//   - Order: a team asks for one piece of equipment
//   - Confirmation: a supplier accepts an order and replies to the team
//   - Broadcast: the administrator addresses teams, suppliers or everyone
//
// All payloads travel as JSON objects with snake_case fields so that clients
// written against the same wire format interoperate.
package contracts

package contracts

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which payload a message body carries
type Kind int

const (
	KindUnknown Kind = iota
	KindOrder
	KindConfirmation
	KindBroadcast
)

func (k Kind) String() string {
	switch k {
	case KindOrder:
		return "order"
	case KindConfirmation:
		return "confirmation"
	case KindBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// Message is implemented by every payload
type Message interface {
	Kind() Kind
	Validate() error
}

// StatusConfirmed is the only status a supplier ever reports
const StatusConfirmed = "confirmed"

// AdminSender is the sender name stamped on every broadcast
const AdminSender = "Admin"

// Order is a team's request for one piece of equipment
type Order struct {
	TeamName        string `json:"team_name"`
	TeamOrderID     string `json:"team_order_id"`
	EquipmentType   string `json:"equipment_type"`
	ReplyRoutingKey string `json:"reply_to_rk,omitempty"`
}

// NewOrder creates an order with a fresh id that asks for replies on replyKey
func NewOrder(team, equipmentType, replyKey string) Order {
	return Order{
		TeamName:        team,
		TeamOrderID:     uuid.NewString(),
		EquipmentType:   equipmentType,
		ReplyRoutingKey: replyKey,
	}
}

// Kind implements Message
func (o Order) Kind() Kind { return KindOrder }

// Validate checks the fields a supplier needs to confirm the order.
// A missing reply key is not an error here; the supplier decides what to do.
func (o Order) Validate() error {
	switch {
	case o.TeamName == "":
		return missingField("team_name")
	case o.TeamOrderID == "":
		return missingField("team_order_id")
	case o.EquipmentType == "":
		return missingField("equipment_type")
	}
	return nil
}

// Confirm builds the supplier's confirmation for this order
func (o Order) Confirm(supplier string) Confirmation {
	return Confirmation{
		TeamName:        o.TeamName,
		TeamOrderID:     o.TeamOrderID,
		EquipmentType:   o.EquipmentType,
		SupplierName:    supplier,
		SupplierOrderID: uuid.NewString(),
		Status:          StatusConfirmed,
	}
}

// Confirmation is a supplier's reply to an Order
type Confirmation struct {
	TeamName        string `json:"team_name"`
	TeamOrderID     string `json:"team_order_id"`
	EquipmentType   string `json:"equipment_type"`
	SupplierName    string `json:"supplier_name"`
	SupplierOrderID string `json:"supplier_order_id"`
	Status          string `json:"status"`
}

// Kind implements Message
func (c Confirmation) Kind() Kind { return KindConfirmation }

// Validate implements Message
func (c Confirmation) Validate() error {
	switch {
	case c.TeamOrderID == "":
		return missingField("team_order_id")
	case c.SupplierName == "":
		return missingField("supplier_name")
	case c.SupplierOrderID == "":
		return missingField("supplier_order_id")
	}
	return nil
}

// BroadcastType selects the audience of a Broadcast
type BroadcastType string

const (
	ToTeams     BroadcastType = "TO_TEAMS"
	ToSuppliers BroadcastType = "TO_SUPPLIERS"
	ToAll       BroadcastType = "TO_ALL"
)

// Valid reports whether t is one of the known audiences
func (t BroadcastType) Valid() bool {
	switch t {
	case ToTeams, ToSuppliers, ToAll:
		return true
	}
	return false
}

// Broadcast is an administrator message. Timestamp is Unix seconds.
type Broadcast struct {
	Sender    string        `json:"sender"`
	Type      BroadcastType `json:"type"`
	Content   string        `json:"content"`
	Timestamp float64       `json:"timestamp"`
}

// NewBroadcast creates an administrator broadcast stamped with now
func NewBroadcast(audience BroadcastType, content string, now time.Time) Broadcast {
	return Broadcast{
		Sender:    AdminSender,
		Type:      audience,
		Content:   content,
		Timestamp: float64(now.Unix()) + float64(now.Nanosecond())/float64(time.Second),
	}
}

// Kind implements Message
func (b Broadcast) Kind() Kind { return KindBroadcast }

// Validate implements Message
func (b Broadcast) Validate() error {
	if !b.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownBroadcastType, b.Type)
	}
	return nil
}

// Time converts Timestamp back to a time.Time
func (b Broadcast) Time() time.Time {
	sec, frac := math.Modf(b.Timestamp)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

package contracts

import "fmt"

// Routes holds the routing-key prefixes and fixed keys of the bus
type Routes struct {
	OrderPrefix        string `mapstructure:"order_prefix"`
	ConfirmationPrefix string `mapstructure:"confirmation_prefix"`
	BroadcastTeams     string `mapstructure:"broadcast_teams"`
	BroadcastSuppliers string `mapstructure:"broadcast_suppliers"`
	BroadcastAll       string `mapstructure:"broadcast_all"`
	MonitorQueue       string `mapstructure:"monitor_queue"`
	MonitorBinding     string `mapstructure:"monitor_binding"`
}

// DefaultRoutes returns the standard routing scheme
func DefaultRoutes() Routes {
	return Routes{
		OrderPrefix:        "orders.",
		ConfirmationPrefix: "confirmations.to_team.",
		BroadcastTeams:     "admin.broadcast.teams",
		BroadcastSuppliers: "admin.broadcast.suppliers",
		BroadcastAll:       "admin.broadcast.all",
		MonitorQueue:       "q_admin_monitor",
		MonitorBinding:     "#",
	}
}

// OrderKey is the routing key of orders for equipmentType
func (r Routes) OrderKey(equipmentType string) string {
	return r.OrderPrefix + equipmentType
}

// ConfirmationKey is the routing key of confirmations addressed to team
func (r Routes) ConfirmationKey(team string) string {
	return r.ConfirmationPrefix + team
}

// BroadcastKey is the routing key for a broadcast audience
func (r Routes) BroadcastKey(audience BroadcastType) (string, error) {
	switch audience {
	case ToTeams:
		return r.BroadcastTeams, nil
	case ToSuppliers:
		return r.BroadcastSuppliers, nil
	case ToAll:
		return r.BroadcastAll, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBroadcastType, audience)
	}
}

// TeamBindings are the keys a team queue is bound with
func (r Routes) TeamBindings(team string) []string {
	return []string{r.ConfirmationKey(team), r.BroadcastTeams, r.BroadcastAll}
}

// SupplierAdminBindings are the keys a supplier admin queue is bound with
func (r Routes) SupplierAdminBindings() []string {
	return []string{r.BroadcastSuppliers, r.BroadcastAll}
}

// TeamQueue is the private queue of team
func TeamQueue(team string) string {
	return "q_team_" + team
}

// OrderQueue is the queue shared by every supplier of equipmentType
func OrderQueue(equipmentType string) string {
	return "q_orders_" + equipmentType
}

// SupplierAdminQueue is the private broadcast queue of supplier
func SupplierAdminQueue(supplier string) string {
	return "q_supplier_" + supplier + "_admin"
}

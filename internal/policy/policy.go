// Package policy is the pure authorization decision function. It never
// touches storage and never applies the transition it allows; callers
// thread the acting user in explicitly and apply the result themselves.
package policy

import "ticket-marketplace/models"

type Action string

const (
	ActionChangeRole      Action = "change_role"
	ActionListUsers       Action = "list_users"
	ActionVerifyTicket    Action = "verify_ticket"
	ActionAdvertiseTicket Action = "advertise_ticket"
	ActionSubmitTicket    Action = "submit_ticket"
	ActionDecideBooking   Action = "decide_booking"
	ActionCancelBooking   Action = "cancel_booking"
)

// Decision is a tagged allow/deny result. A denied decision always
// carries the reason.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Target carries the minimum the rules need to know about what the actor
// is acting on. Unused fields stay zero.
type Target struct {
	UserEmail   string               // role change target
	VendorEmail string               // ticket / booking owner
	BookedBy    string               // booking user
	Status      models.BookingStatus // booking status at decision time
}

// CanPerform maps (actor role, actor identity, target, action) to a
// Decision.
func CanPerform(actor *models.User, action Action, target Target) Decision {
	if actor == nil {
		return deny("unauthenticated")
	}

	switch action {
	case ActionChangeRole:
		// Only admins change roles, and never their own. The self-change
		// rule is checked first so that a self-targeting admin is denied
		// for the right reason. Marking a vendor as fraud is a role
		// change and follows the same rule.
		if actor.Email == target.UserEmail {
			return deny("actors may not change their own role")
		}
		if actor.Role != models.RoleAdmin {
			return deny("only admins may change roles")
		}
		return allow()

	case ActionListUsers:
		if actor.Role != models.RoleAdmin {
			return deny("only admins may list users")
		}
		return allow()

	case ActionSubmitTicket:
		if actor.Role != models.RoleVendor {
			return deny("only vendors may submit tickets")
		}
		return allow()

	case ActionVerifyTicket:
		if actor.Role != models.RoleAdmin {
			return deny("only admins may verify tickets")
		}
		return allow()

	case ActionAdvertiseTicket:
		if actor.Role == models.RoleAdmin {
			return allow()
		}
		if actor.Role == models.RoleVendor && actor.Email == target.VendorEmail {
			return allow()
		}
		return deny("only the owning vendor or an admin may advertise a ticket")

	case ActionDecideBooking:
		if actor.Role == models.RoleAdmin {
			return allow()
		}
		if actor.Email == target.VendorEmail {
			return allow()
		}
		return deny("only the booking's vendor or an admin may decide it")

	case ActionCancelBooking:
		if actor.Role == models.RoleAdmin {
			return allow()
		}
		if actor.Email == target.VendorEmail {
			return allow()
		}
		if actor.Email == target.BookedBy {
			// The booking user may only back out while the vendor has
			// not yet decided.
			if target.Status != models.BookingPending {
				return deny("users may cancel only pending bookings")
			}
			return allow()
		}
		return deny("only the booking's user, vendor or an admin may cancel it")
	}

	return deny("unknown action")
}

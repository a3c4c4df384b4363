package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ticket-marketplace/models"
)

func user(role models.Role, email string) *models.User {
	return &models.User{Email: email, Role: role}
}

func TestCanPerform_Unauthenticated(t *testing.T) {
	d := CanPerform(nil, ActionListUsers, Target{})

	assert.False(t, d.Allowed)
	assert.Equal(t, "unauthenticated", d.Reason)
}

func TestCanPerform_ChangeRole(t *testing.T) {
	tests := []struct {
		name    string
		actor   *models.User
		target  Target
		allowed bool
	}{
		{
			name:    "admin changes another user",
			actor:   user(models.RoleAdmin, "admin@x.com"),
			target:  Target{UserEmail: "someone@x.com"},
			allowed: true,
		},
		{
			name:    "admin marks vendor as fraud",
			actor:   user(models.RoleAdmin, "admin@x.com"),
			target:  Target{UserEmail: "vendor@x.com"},
			allowed: true,
		},
		{
			name:    "non-admin denied",
			actor:   user(models.RoleVendor, "vendor@x.com"),
			target:  Target{UserEmail: "someone@x.com"},
			allowed: false,
		},
		{
			name:    "admin cannot change own role",
			actor:   user(models.RoleAdmin, "admin@x.com"),
			target:  Target{UserEmail: "admin@x.com"},
			allowed: false,
		},
		{
			name:    "user cannot change own role",
			actor:   user(models.RoleUser, "me@x.com"),
			target:  Target{UserEmail: "me@x.com"},
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanPerform(tt.actor, ActionChangeRole, tt.target)
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestCanPerform_SelfRoleChangeReason(t *testing.T) {
	// The self-change rule wins over the admin rule, so a self-targeting
	// admin is told the real reason.
	d := CanPerform(user(models.RoleAdmin, "admin@x.com"), ActionChangeRole, Target{UserEmail: "admin@x.com"})

	assert.False(t, d.Allowed)
	assert.Equal(t, "actors may not change their own role", d.Reason)
}

func TestCanPerform_ListUsers(t *testing.T) {
	assert.True(t, CanPerform(user(models.RoleAdmin, "a@x.com"), ActionListUsers, Target{}).Allowed)
	assert.False(t, CanPerform(user(models.RoleVendor, "v@x.com"), ActionListUsers, Target{}).Allowed)
	assert.False(t, CanPerform(user(models.RoleUser, "u@x.com"), ActionListUsers, Target{}).Allowed)
	assert.False(t, CanPerform(user(models.RoleFraud, "f@x.com"), ActionListUsers, Target{}).Allowed)
}

func TestCanPerform_SubmitTicket(t *testing.T) {
	assert.True(t, CanPerform(user(models.RoleVendor, "v@x.com"), ActionSubmitTicket, Target{}).Allowed)
	assert.False(t, CanPerform(user(models.RoleUser, "u@x.com"), ActionSubmitTicket, Target{}).Allowed)
	assert.False(t, CanPerform(user(models.RoleAdmin, "a@x.com"), ActionSubmitTicket, Target{}).Allowed)
	assert.False(t, CanPerform(user(models.RoleFraud, "f@x.com"), ActionSubmitTicket, Target{}).Allowed)
}

func TestCanPerform_VerifyTicket(t *testing.T) {
	assert.True(t, CanPerform(user(models.RoleAdmin, "a@x.com"), ActionVerifyTicket, Target{}).Allowed)
	assert.False(t, CanPerform(user(models.RoleVendor, "v@x.com"), ActionVerifyTicket, Target{}).Allowed)
}

func TestCanPerform_AdvertiseTicket(t *testing.T) {
	target := Target{VendorEmail: "owner@x.com"}

	assert.True(t, CanPerform(user(models.RoleVendor, "owner@x.com"), ActionAdvertiseTicket, target).Allowed)
	assert.True(t, CanPerform(user(models.RoleAdmin, "a@x.com"), ActionAdvertiseTicket, target).Allowed)
	assert.False(t, CanPerform(user(models.RoleVendor, "other@x.com"), ActionAdvertiseTicket, target).Allowed)
	assert.False(t, CanPerform(user(models.RoleUser, "owner@x.com"), ActionAdvertiseTicket, target).Allowed)
}

func TestCanPerform_DecideBooking(t *testing.T) {
	target := Target{VendorEmail: "vendor@x.com", BookedBy: "buyer@x.com"}

	assert.True(t, CanPerform(user(models.RoleVendor, "vendor@x.com"), ActionDecideBooking, target).Allowed)
	assert.True(t, CanPerform(user(models.RoleAdmin, "a@x.com"), ActionDecideBooking, target).Allowed)
	assert.False(t, CanPerform(user(models.RoleUser, "buyer@x.com"), ActionDecideBooking, target).Allowed)
	assert.False(t, CanPerform(user(models.RoleVendor, "other@x.com"), ActionDecideBooking, target).Allowed)
}

func TestCanPerform_CancelBooking(t *testing.T) {
	tests := []struct {
		name    string
		actor   *models.User
		status  models.BookingStatus
		allowed bool
	}{
		{
			name:    "user cancels own pending booking",
			actor:   user(models.RoleUser, "buyer@x.com"),
			status:  models.BookingPending,
			allowed: true,
		},
		{
			name:    "user cannot cancel accepted booking",
			actor:   user(models.RoleUser, "buyer@x.com"),
			status:  models.BookingAccepted,
			allowed: false,
		},
		{
			name:    "vendor cancels accepted booking",
			actor:   user(models.RoleVendor, "vendor@x.com"),
			status:  models.BookingAccepted,
			allowed: true,
		},
		{
			name:    "admin cancels accepted booking",
			actor:   user(models.RoleAdmin, "a@x.com"),
			status:  models.BookingAccepted,
			allowed: true,
		},
		{
			name:    "stranger denied",
			actor:   user(models.RoleUser, "stranger@x.com"),
			status:  models.BookingPending,
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := Target{
				VendorEmail: "vendor@x.com",
				BookedBy:    "buyer@x.com",
				Status:      tt.status,
			}
			d := CanPerform(tt.actor, ActionCancelBooking, target)
			assert.Equal(t, tt.allowed, d.Allowed)
		})
	}
}

func TestCanPerform_UnknownAction(t *testing.T) {
	d := CanPerform(user(models.RoleAdmin, "a@x.com"), Action("reboot"), Target{})

	assert.False(t, d.Allowed)
	assert.Equal(t, "unknown action", d.Reason)
}

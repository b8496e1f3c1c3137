package services

import (
	"fmt"
	"slices"

	"github.com/smartapp/orderpay/internal/models"
)

// Role gates live here so every surface checks the same lists. Services trust
// the actor they are given; HTTP handlers call these before invoking them.
var (
	adminRoles          = []string{models.RoleSuperAdmin, models.RoleSupportAdmin, models.RoleKitchenAdmin}
	statusRoles         = adminRoles
	refundRoles         = []string{models.RoleSuperAdmin, models.RoleSupportAdmin}
	resendEmailRoles    = []string{models.RoleSuperAdmin, models.RoleSupportAdmin}
	overridePaymentRole = []string{models.RoleSuperAdmin}
	deleteOrderRoles    = []string{models.RoleSuperAdmin}
)

func RequireRole(actor models.Actor, allowed ...string) error {
	if slices.Contains(allowed, actor.Role) {
		return nil
	}
	return fmt.Errorf("%w: role %q", ErrForbidden, actor.Role)
}

func IsAdmin(actor models.Actor) bool {
	return slices.Contains(adminRoles, actor.Role)
}

func RequireAdmin(actor models.Actor) error {
	return RequireRole(actor, adminRoles...)
}

func CanAdvanceStatus(actor models.Actor) error {
	return RequireRole(actor, statusRoles...)
}

func CanRefund(actor models.Actor) error {
	return RequireRole(actor, refundRoles...)
}

func CanResendEmail(actor models.Actor) error {
	return RequireRole(actor, resendEmailRoles...)
}

func CanOverridePayment(actor models.Actor) error {
	return RequireRole(actor, overridePaymentRole...)
}

func CanDeleteOrder(actor models.Actor) error {
	return RequireRole(actor, deleteOrderRoles...)
}

// canAccessOrder reports whether actor may read or act on order as its owner.
// Admins and the system actor see every order.
func canAccessOrder(actor models.Actor, order *models.Order) bool {
	if IsAdmin(actor) || actor.Role == models.RoleSystem {
		return true
	}
	return actor.Role == models.RoleCustomer && actor.ID != "" && actor.ID == order.UserID
}

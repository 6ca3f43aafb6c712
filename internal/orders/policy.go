package orders

import (
	"github.com/joao-fontenele/medstore/internal/auth"
	"github.com/joao-fontenele/medstore/internal/domain"
)

// Policy holds the role rules for the order routes. The workflow engine
// itself does no authorization.
type Policy struct {
	// OwnerOnlyRead limits single-order reads by customers to their own
	// orders. Off by default: any authenticated caller may read any order.
	OwnerOnlyRead bool
}

func (p Policy) CanListAll(caller auth.Principal) bool {
	return caller.IsStaff()
}

func (p Policy) CanUpdateStatus(caller auth.Principal) bool {
	return caller.IsStaff()
}

func (p Policy) CanView(caller auth.Principal, order *domain.Order) bool {
	if !p.OwnerOnlyRead || caller.IsStaff() {
		return true
	}
	return order.UserID == caller.UserID
}

package party

import "time"

type Role string

const (
	RoleBuyer        Role = "buyer"
	RoleSeller       Role = "seller"
	RoleBuyerAgent   Role = "buyer_agent"
	RoleListingAgent Role = "listing_agent"
	RoleLender       Role = "lender"
	RoleEscrow       Role = "escrow"
	RoleTitle        Role = "title"
)

// Party is a person attached to a deal (buyer, seller, outside agent, ...).
type Party struct {
	ID        string
	DealID    string
	Role      Role
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
}

type EscrowCompany struct {
	ID            string
	Name          string
	Email         *string
	Phone         *string
	ContactPerson *string
}

type Lender struct {
	ID              string
	Name            string
	Email           *string
	Phone           *string
	LoanOfficerName *string
}

// Agent is an in-house agent profile.
type Agent struct {
	ID        string
	Email     string
	FirstName *string
	LastName  *string
}

// FullName joins the agent's name parts, skipping missing ones.
func (a Agent) FullName() string {
	name := ""
	if a.FirstName != nil {
		name = *a.FirstName
	}
	if a.LastName != nil {
		if name != "" {
			name += " "
		}
		name += *a.LastName
	}
	return name
}

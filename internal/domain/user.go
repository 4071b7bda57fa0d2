package domain

type ContextKey string

const UserContextKey ContextKey = "user"

// User is the caller identified by the access token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Roles allowed to change shipping settings.
const (
	RoleAdmin       = "admin"
	RoleShopManager = "shop_manager"
)

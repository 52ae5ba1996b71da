package domain

// Role type to distinguish between caller roles carried in the access token
type Role string

const (
	RoleTrainer Role = "trainer"
	RoleClient  Role = "client"
)

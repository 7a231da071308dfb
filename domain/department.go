package domain

// Department groups users and tasks and is the unit of access control.
type Department struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ManagerID   *string   `json:"managerId"`
	Members     []string  `json:"members"`
	CreatedAt   Timestamp `json:"createdAt"`
}

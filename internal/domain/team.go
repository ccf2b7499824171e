package domain

// Team is a resolver group that tickets route to.
type Team struct {
	Name  string
	Email string
}

package domain

// Snapshot is a consistent read of the session state.
type Snapshot struct {
	State    ConnectionState
	Username string
	Room     string
	Draft    string
	Messages int
}

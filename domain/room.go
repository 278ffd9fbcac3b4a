package domain

// ValidRoomName reports whether name can be joined.
// Any non-empty string is a room; the relay owns naming rules.
func ValidRoomName(name string) bool {
	return name != ""
}

package tree

// EntryExistsError is returned when an add operation collides with an
// existing entry of the same name and kind.
type EntryExistsError struct {
	Name string
}

func (e *EntryExistsError) Error() string {
	return "gitdb: entry exists: " + e.Name
}

package service

// EntryHandler is implemented by components that need to be notified of new
// history entries. Only the id is delivered; implementations fetch the
// entry themselves.
type EntryHandler interface {
	HandleNewEntry(id int64)
}

// HandlerFunc adapts a function to EntryHandler
type HandlerFunc func(id int64)

func (f HandlerFunc) HandleNewEntry(id int64) {
	f(id)
}

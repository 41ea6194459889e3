package domain

// Datagram is one inbound packet already tagged with the connection it
// arrived on. Err is set instead of Data when the connection failed.
type Datagram struct {
	Slot SlotID
	Data []byte
	Err  error
}

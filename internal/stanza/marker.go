package stanza

const (
	// NSReceipts is the delivery receipts namespace.
	NSReceipts = "urn:xmpp:receipts"
	// NSStorage marks stanzas replayed from offline storage.
	NSStorage = "urn:msgstore:storage"
)

// Receipt returns the id carried by the delivery receipt child of the given
// kind ("request" or "received"), if present and non-empty.
func Receipt(e *Element, kind string) (string, bool) {
	r := e.Child(NSReceipts, kind)
	if r == nil {
		return "", false
	}
	id := r.GetAttr("id")
	return id, id != ""
}

// MarkStored appends the storage marker carrying id.
func MarkStored(e *Element, id string) {
	e.AddChild(NSStorage, "storage").SetAttr("id", id)
}

// StoredID returns the storage id of a replayed stanza. The second result is
// false for stanzas that did not come from offline storage.
func StoredID(e *Element) (string, bool) {
	m := e.Child(NSStorage, "storage")
	if m == nil {
		return "", false
	}
	return m.GetAttr("id"), true
}

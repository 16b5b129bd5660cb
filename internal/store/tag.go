package store

// Tag labels cached entries by the entities they contain. ID is an entity
// id, "LIST", or a parent-scoped list "LIST-<parentID>".
type Tag struct {
	Type string
	ID   string
}

// ListID is the ID of an unscoped list tag.
const ListID = "LIST"

// ItemTag returns the tag for a single entity.
func ItemTag(typ, id string) Tag { return Tag{Type: typ, ID: id} }

// ListTag returns the tag for every list of typ.
func ListTag(typ string) Tag { return Tag{Type: typ, ID: ListID} }

// ScopedListTag returns the tag for the lists of typ under one parent,
// e.g. the comments of one post.
func ScopedListTag(typ, parentID string) Tag {
	return Tag{Type: typ, ID: ListID + "-" + parentID}
}

// String returns "Type:ID".
func (t Tag) String() string { return t.Type + ":" + t.ID }

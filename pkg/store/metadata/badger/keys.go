package badger

// ============================================================================
// Key Prefixes
// ============================================================================
//
// All records and indexes share one keyspace, separated by prefix. Owner
// scoped keys use a NUL separator, which cannot appear in owner ids or
// filenames (both reject control characters).

const (
	// prefixFile maps a record id to its JSON-encoded record.
	prefixFile = "f:"

	// prefixName maps (owner, filename) to a record id. Unique.
	prefixName = "n:"

	// prefixHash maps (owner, content hash) to a READY record id. Unique.
	prefixHash = "h:"

	// prefixLink maps a link id to a record id. Unique.
	prefixLink = "l:"

	// prefixContent marks (hash, id) pairs for cross-owner hash counts.
	prefixContent = "c:"

	// prefixOwner marks (owner, id) pairs for owner-scoped listings.
	prefixOwner = "o:"

	// prefixPublic marks ids of PUBLIC records.
	prefixPublic = "v:"

	// prefixPending marks ids of PENDING records.
	prefixPending = "p:"
)

const sep = "\x00"

func keyFile(id string) []byte {
	return []byte(prefixFile + id)
}

func keyName(ownerID, filename string) []byte {
	return []byte(prefixName + ownerID + sep + filename)
}

func keyHash(ownerID, hash string) []byte {
	return []byte(prefixHash + ownerID + sep + hash)
}

func keyLink(linkID string) []byte {
	return []byte(prefixLink + linkID)
}

func keyContent(hash, id string) []byte {
	return []byte(prefixContent + hash + sep + id)
}

func keyContentPrefix(hash string) []byte {
	return []byte(prefixContent + hash + sep)
}

func keyOwner(ownerID, id string) []byte {
	return []byte(prefixOwner + ownerID + sep + id)
}

func keyOwnerPrefix(ownerID string) []byte {
	return []byte(prefixOwner + ownerID + sep)
}

func keyPublic(id string) []byte {
	return []byte(prefixPublic + id)
}

func keyPending(id string) []byte {
	return []byte(prefixPending + id)
}

// idFromKey returns the record id suffix of an index key built with prefix.
func idFromKey(key, prefix []byte) string {
	return string(key[len(prefix):])
}

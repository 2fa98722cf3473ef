package model

// MembershipChange names a folder/feed pairing by the identifiers that are
// stable inside one reconciliation batch: folder name and feed external ID.
// The store resolves them to row IDs inside the applying transaction, so
// changes may reference folders or feeds created in the same batch.
type MembershipChange struct {
	FolderName     string
	FeedExternalID string
	RelationshipID string
}

// ContainerChanges is the minimal set of mutations a container
// reconciliation computed. It is applied as a single transaction.
type ContainerChanges struct {
	DeleteFolderIDs []int64
	CreateFolders   []Folder

	DeleteFeedIDs []int64
	CreateFeeds   []Feed
	UpdateFeeds   []Feed

	RemoveMemberships []MembershipChange
	AddMemberships    []MembershipChange
}

// IsEmpty reports whether the batch contains no mutations.
func (c *ContainerChanges) IsEmpty() bool {
	return c.Count() == 0
}

// Count returns the total number of mutations in the batch.
func (c *ContainerChanges) Count() int {
	return len(c.DeleteFolderIDs) + len(c.CreateFolders) +
		len(c.DeleteFeedIDs) + len(c.CreateFeeds) + len(c.UpdateFeeds) +
		len(c.RemoveMemberships) + len(c.AddMemberships)
}

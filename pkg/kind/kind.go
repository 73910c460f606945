package kind

// T is the event type in the nostr protocol. It is a distinct type so kind
// values are referred to as kind.LongFormContent rather than as bare
// integers; go-nostr carries kinds as int, so convert with ToInt.
type T uint16

func (ki T) ToInt() int { return int(ki) }

const (
	// ProfileMetadata stores user profile data, pet names, bio, lightning
	// address, etc.
	ProfileMetadata T = 0
	// FollowList is an event containing a list of pubkeys of users that should
	// be shown as follows in a timeline.
	FollowList T = 3
	// ReplaceableStart is the first of the range of kinds where only the
	// newest event per author is kept.
	ReplaceableStart T = 10000
	// RelayListMetadata is the NIP-65 list of an author's inbox and outbox
	// relays.
	RelayListMetadata T = 10002
	// FileStorageServerList is the list of blossom servers of an author.
	FileStorageServerList T = 10096
	ReplaceableEnd        T = 20000
	// BlossomAuth is the authorization event sent with blob uploads.
	BlossomAuth T = 24242
	// HTTPAuth is the NIP-98 authorization event.
	HTTPAuth T = 27235
	// ParameterizedReplaceableStart is the first of the range of addressable
	// kinds, where the newest event per author and "d" tag is kept.
	ParameterizedReplaceableStart T = 30000
	// LongFormContent is a NIP-23 article.
	LongFormContent T = 30023
	// DraftLongFormContent is an unpublished NIP-23 article.
	DraftLongFormContent        T = 30024
	ParameterizedReplaceableEnd T = 40000
)

var Text = map[T]string{
	ProfileMetadata:       "ProfileMetadata",
	FollowList:            "FollowList",
	RelayListMetadata:     "RelayListMetadata",
	FileStorageServerList: "FileStorageServerList",
	BlossomAuth:           "BlossomAuth",
	HTTPAuth:              "HTTPAuth",
	LongFormContent:       "LongFormContent",
	DraftLongFormContent:  "DraftLongFormContent",
}

func (ki T) String() string {
	if s, ok := Text[ki]; ok {
		return s
	}
	return "Unknown"
}

func (ki T) IsReplaceable() bool {
	return ki == ProfileMetadata || ki == FollowList ||
		(ki >= ReplaceableStart && ki < ReplaceableEnd)
}

func (ki T) IsParameterizedReplaceable() bool {
	return ki >= ParameterizedReplaceableStart &&
		ki < ParameterizedReplaceableEnd
}

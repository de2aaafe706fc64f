package types

// ResourceType is the coarse category of a discovered resource
type ResourceType string

const (
	TypeLink     ResourceType = "link"
	TypeImage    ResourceType = "image"
	TypeVideo    ResourceType = "video"
	TypeAudio    ResourceType = "audio"
	TypeSubtitle ResourceType = "subtitle"
)

// Valid reports whether t is one of the known resource types.
func (t ResourceType) Valid() bool {
	switch t {
	case TypeLink, TypeImage, TypeVideo, TypeAudio, TypeSubtitle:
		return true
	}
	return false
}

// Element tags record which page construct a resource was discovered through.
const (
	ElementAnchor            = "a"
	ElementImage             = "img"
	ElementVideo             = "video"
	ElementAudio             = "audio"
	ElementYouTubeEmbed      = "youtube-embed"
	ElementYouTubePlayer     = "youtube-player"
	ElementVimeoEmbed        = "vimeo-embed"
	ElementTwitchEmbed       = "twitch-embed"
	ElementBlobMedia         = "blob-media"
	ElementEmbeddedPlayer    = "embedded-player"
	ElementStreamingManifest = "streaming-manifest"
	ElementSource            = "source"
	ElementCSSBackground     = "css-background"
	ElementTrack             = "track"
	ElementSubtitleLink      = "subtitle-link"
	ElementSubtitleData      = "subtitle-data"
)

// ResourceDescriptor is one downloadable item found on a page. It is a
// comparable value; two descriptors are the same resource only when every
// field matches.
type ResourceDescriptor struct {
	URL       string       `json:"url"`
	Type      ResourceType `json:"type"`
	Filename  string       `json:"filename"`
	Element   string       `json:"element"`
	Text      string       `json:"text"`
	Extension string       `json:"extension"`
}

// BatchResult is the aggregate outcome of one download batch
type BatchResult struct {
	Downloaded int           `json:"downloaded"`
	Failed     int           `json:"failed"`
	Total      int           `json:"total"`
	Items      []ItemOutcome `json:"items,omitempty"`
}

// ItemOutcome is the settled result of downloading a single resource
type ItemOutcome struct {
	ProgressID string `json:"progressId"`
	URL        string `json:"url"`
	Path       string `json:"path"`
	DownloadID string `json:"downloadId,omitempty"`
	Bytes      int64  `json:"bytes,omitempty"`
	SHA3       string `json:"sha3,omitempty"`
	MediaType  string `json:"mediaType,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Succeeded reports whether the item settled without error.
func (o ItemOutcome) Succeeded() bool {
	return o.Error == ""
}

package feed

// Credential identifies whose likes to read and how to authenticate.
// UserID is the platform's numeric user id, Token a bearer token for its API.
type Credential struct {
	UserID string
	Token  string
}

// Valid reports whether both parts of the credential are present.
func (c Credential) Valid() bool {
	return c.UserID != "" && c.Token != ""
}

// Page is one page of the liked-posts feed.
// An empty NextCursor means the end of the feed.
type Page struct {
	Items       []RawItem
	Includes    Includes
	ResultCount int
	NextCursor  string
}

// RawItem is a liked post as the platform returns it, before normalization.
type RawItem struct {
	ID            string         `json:"id"`
	Text          string         `json:"text"`
	CreatedAt     string         `json:"created_at"`
	AuthorID      string         `json:"author_id"`
	PublicMetrics *PublicMetrics `json:"public_metrics,omitempty"`
	Attachments   *Attachments   `json:"attachments,omitempty"`
}

// PublicMetrics are the engagement counters attached to a post.
type PublicMetrics struct {
	RetweetCount int `json:"retweet_count"`
	LikeCount    int `json:"like_count"`
	ReplyCount   int `json:"reply_count"`
}

// Attachments lists the media keys attached to a post.
type Attachments struct {
	MediaKeys []string `json:"media_keys"`
}

// Includes holds the expansions returned alongside a page.
type Includes struct {
	Users []User  `json:"users"`
	Media []Media `json:"media"`
}

// User is a platform account.
type User struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// Media is an expanded media attachment.
type Media struct {
	MediaKey string `json:"media_key"`
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
}

// UsersByID indexes users for author lookup.
func (i Includes) UsersByID() map[string]User {
	m := make(map[string]User, len(i.Users))
	for _, u := range i.Users {
		m[u.ID] = u
	}
	return m
}

// Raw API response types (internal)

type likedResponse struct {
	Data     []RawItem `json:"data"`
	Includes Includes  `json:"includes"`
	Meta     struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

type userResponse struct {
	Data *User `json:"data"`
}

type problemResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

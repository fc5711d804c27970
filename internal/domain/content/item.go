// Package content models the item currently under evaluation and the
// derived text features the rule engine conditions on.
package content

import (
	"net/url"
	"regexp"
	"strings"
)

// ItemKind distinguishes posts from comments.
type ItemKind string

const (
	KindPost    ItemKind = "post"
	KindComment ItemKind = "comment"
)

// ItemType classifies what a post carries.
type ItemType string

const (
	TypeText    ItemType = "text"
	TypeLink    ItemType = "link"
	TypeImage   ItemType = "image"
	TypeVideo   ItemType = "video"
	TypeGallery ItemType = "gallery"
	TypePoll    ItemType = "poll"
)

// Item is the content currently under evaluation. It is constructed once per
// event and never mutated.
type Item struct {
	Kind        ItemKind `json:"kind"`
	Title       string   `json:"title,omitempty"`
	Body        string   `json:"body"`
	Subreddit   string   `json:"subreddit"`
	Type        ItemType `json:"type"`
	URLs        []string `json:"urls,omitempty"`
	Domains     []string `json:"domains,omitempty"`
	WordCount   int      `json:"word_count"`
	CharCount   int      `json:"char_count"`
	TitleLength int      `json:"title_length"`
	BodyLength  int      `json:"body_length"`
	HasMedia    bool     `json:"has_media"`
	LinkURL     string   `json:"link_url,omitempty"`
	IsEdited    bool     `json:"is_edited"`
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>()\[\]"']+`)

var mediaExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".mp4": true, ".webm": true, ".mov": true,
}

// NewItem builds an Item from raw event fields, deriving URL, domain, and
// length features.
func NewItem(kind ItemKind, title, body, subreddit, linkURL string, isEdited bool) *Item {
	item := &Item{
		Kind:        kind,
		Title:       title,
		Body:        body,
		Subreddit:   subreddit,
		LinkURL:     linkURL,
		IsEdited:    isEdited,
		TitleLength: len(title),
		BodyLength:  len(body),
		CharCount:   len(title) + len(body),
		WordCount:   countWords(title) + countWords(body),
	}

	item.URLs = extractURLs(title + " " + body)
	if linkURL != "" {
		item.URLs = appendUnique(item.URLs, linkURL)
	}
	item.Domains = extractDomains(item.URLs)
	item.Type = classify(kind, linkURL, item.Domains)
	item.HasMedia = item.Type == TypeImage || item.Type == TypeVideo || item.Type == TypeGallery

	return item
}

// HasExternalLinks reports whether the item contains any URL.
func (i *Item) HasExternalLinks() bool {
	return len(i.URLs) > 0
}

// Text returns the normalized title+body used for fingerprinting.
func (i *Item) Text() string {
	return strings.TrimSpace(strings.Join(strings.Fields(i.Title+" "+i.Body), " "))
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

func extractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	var urls []string
	for _, m := range matches {
		urls = appendUnique(urls, strings.TrimRight(m, ".,;:!?"))
	}
	return urls
}

func extractDomains(urls []string) []string {
	var domains []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
		domains = appendUnique(domains, host)
	}
	return domains
}

func classify(kind ItemKind, linkURL string, domains []string) ItemType {
	if kind == KindComment {
		return TypeText
	}
	if linkURL == "" {
		return TypeText
	}
	lower := strings.ToLower(linkURL)
	for ext := range mediaExtensions {
		if strings.HasSuffix(lower, ext) {
			if ext == ".mp4" || ext == ".webm" || ext == ".mov" {
				return TypeVideo
			}
			return TypeImage
		}
	}
	for _, d := range domains {
		switch d {
		case "i.redd.it", "imgur.com", "i.imgur.com":
			return TypeImage
		case "v.redd.it", "youtube.com", "youtu.be":
			return TypeVideo
		case "reddit.com/gallery":
			return TypeGallery
		}
	}
	return TypeLink
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

package activitypub

import (
	"fmt"
	"net/url"
	"slices"

	"github.com/nao1215/threadcap/internal/model"
)

// attachmentTypes are the accepted attachment object types.
var attachmentTypes = []string{"Document", "Image", "Video", "Audio"}

const htmlMediaType = "text/html"

// computeComment normalizes a note-like object into a Comment.
func computeComment(obj map[string]any, id string) (*model.Comment, error) {
	content, err := computeContent(obj)
	if err != nil {
		// One producer nests the real object under description.
		desc, ok := obj["description"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w for %s", err, id)
		}
		if content, err = computeContent(desc); err != nil {
			return nil, fmt.Errorf("%w for %s", err, id)
		}
		obj = mergeDescription(obj, desc)
	}

	attributedTo, err := computeAttributedTo(obj["attributedTo"])
	if err != nil {
		return nil, fmt.Errorf("%w for %s", err, id)
	}

	published, ok := obj["published"].(string)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrMissingPublished, id)
	}

	attachments, err := computeAttachments(obj["attachment"])
	if err != nil {
		return nil, fmt.Errorf("%w for %s", err, id)
	}

	objectID := stringField(obj, "id")
	if objectID == "" {
		objectID = id
	}
	return &model.Comment{
		URL:          computeURL(obj["url"], objectID),
		Published:    published,
		Attachments:  attachments,
		Content:      content,
		AttributedTo: attributedTo,
	}, nil
}

// mergeDescription overlays the fields of a nested description object on
// its parent, keeping the parent's value where the description has none.
func mergeDescription(parent, desc map[string]any) map[string]any {
	merged := make(map[string]any, len(parent)+len(desc))
	for k, v := range parent {
		merged[k] = v
	}
	for k, v := range desc {
		merged[k] = v
	}
	return merged
}

// computeContent prefers contentMap and falls back to content as "und".
func computeContent(obj map[string]any) (map[string]string, error) {
	if contentMap, ok := obj["contentMap"].(map[string]any); ok {
		content := make(map[string]string, len(contentMap))
		for lang, v := range contentMap {
			if text, ok := v.(string); ok {
				content[lang] = text
			}
		}
		if len(content) > 0 {
			return content, nil
		}
	}
	if text, ok := obj["content"].(string); ok {
		return map[string]string{model.LanguageUnspecified: text}, nil
	}
	return nil, ErrMissingContent
}

// computeAttributedTo accepts a string, an array of strings (first wins) or
// an array of objects (first Person wins).
func computeAttributedTo(value any) (string, error) {
	switch v := value.(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok && s != "" {
				return s, nil
			}
		}
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok || stringField(obj, "type") != typePerson {
				continue
			}
			if id := stringField(obj, "id"); id != "" {
				return id, nil
			}
		}
	}
	return "", ErrMissingAttributedTo
}

// computeURL returns a string url, the text/html link of a link array, or
// fallback.
func computeURL(value any, fallback string) string {
	switch v := value.(type) {
	case string:
		if v != "" {
			return v
		}
	case []any:
		for _, item := range v {
			link, ok := item.(map[string]any)
			if !ok || stringField(link, "mediaType") != htmlMediaType {
				continue
			}
			if href := stringField(link, "href"); href != "" {
				return href
			}
		}
	}
	return fallback
}

// computeAttachments normalizes a single attachment or an array of them.
func computeAttachments(value any) ([]model.Attachment, error) {
	var items []any
	switch v := value.(type) {
	case nil:
		return []model.Attachment{}, nil
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAttachment, value)
	}

	attachments := make([]model.Attachment, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedAttachment, item)
		}
		attachment, err := computeAttachment(obj)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, attachment)
	}
	return attachments, nil
}

func computeAttachment(obj map[string]any) (model.Attachment, error) {
	objType := stringField(obj, "type")
	if !slices.Contains(attachmentTypes, objType) {
		return model.Attachment{}, fmt.Errorf("%w: type %q", ErrUnsupportedAttachment, objType)
	}
	mediaType := stringField(obj, "mediaType")
	if mediaType == "" {
		return model.Attachment{}, fmt.Errorf("%w: %s without mediaType", ErrUnsupportedAttachment, objType)
	}
	attachmentURL := stringField(obj, "url")
	if attachmentURL == "" {
		return model.Attachment{}, fmt.Errorf("%w: %s without url", ErrUnsupportedAttachment, objType)
	}
	return model.Attachment{
		MediaType: mediaType,
		Width:     intField(obj, "width"),
		Height:    intField(obj, "height"),
		URL:       attachmentURL,
	}, nil
}

// computeCommenter normalizes an actor object into a Commenter.
func computeCommenter(obj map[string]any, attributedTo string, asof model.Instant) (*model.Commenter, error) {
	icon, err := computeIcon(obj["icon"])
	if err != nil {
		return nil, fmt.Errorf("%w for %s", err, attributedTo)
	}

	preferredUsername := stringField(obj, "preferredUsername")
	name := stringField(obj, "name")
	if name == "" {
		name = preferredUsername
	}
	if name == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingName, attributedTo)
	}

	id := stringField(obj, "id")
	if id == "" {
		id = attributedTo
	}
	return &model.Commenter{
		Icon:       icon,
		Name:       name,
		URL:        computeURL(obj["url"], id),
		FQUsername: computeFQUsername(preferredUsername, id),
		Asof:       asof,
	}, nil
}

// computeIcon accepts an image object or an array of them (first wins).
// An absent icon is fine, a present but unusable one is not.
func computeIcon(value any) (*model.Icon, error) {
	if arr, ok := value.([]any); ok {
		if len(arr) == 0 {
			return nil, nil //nolint:nilnil // no icon
		}
		value = arr[0]
	}
	switch v := value.(type) {
	case nil:
		return nil, nil //nolint:nilnil // no icon
	case map[string]any:
		iconURL := stringField(v, "url")
		if iconURL == "" {
			return nil, ErrUnsupportedIcon
		}
		return &model.Icon{URL: iconURL, MediaType: stringField(v, "mediaType")}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedIcon, value)
	}
}

// computeFQUsername builds "@user@host" from the username and the actor id's host.
func computeFQUsername(username, actorID string) string {
	if username == "" {
		return ""
	}
	u, err := url.Parse(actorID)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return "@" + username + "@" + u.Hostname()
}

// intField returns obj[key] as an int pointer when it is a whole JSON number.
func intField(obj map[string]any, key string) *int {
	f, ok := obj[key].(float64)
	if !ok || f != float64(int(f)) {
		return nil
	}
	n := int(f)
	return &n
}

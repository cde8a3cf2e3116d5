package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nao1215/threadcap/internal/fetch"
	"github.com/nao1215/threadcap/internal/protocol"
)

// repliesShape is the closed set of reply collection representations.
type repliesShape interface {
	isRepliesShape()
}

// repliesLink: the replies value is the url of an OrderedCollection.
type repliesLink struct {
	url string
}

// repliesInlinePage: replies.first is an inline page object.
type repliesInlinePage struct {
	page map[string]any
}

// repliesFirstLink: replies.first is the url of the first page.
type repliesFirstLink struct {
	url string
}

// repliesBareArray: replies is a JSON array. Only the empty array is valid.
type repliesBareArray struct {
	items []any
}

// repliesInlineItems: replies carries items directly, without pages.
type repliesInlineItems struct {
	collection map[string]any
}

func (repliesLink) isRepliesShape()        {}
func (repliesInlinePage) isRepliesShape()  {}
func (repliesFirstLink) isRepliesShape()   {}
func (repliesBareArray) isRepliesShape()   {}
func (repliesInlineItems) isRepliesShape() {}

// classifyReplies decides the shape of a replies value.
func classifyReplies(value any) (repliesShape, error) {
	switch v := value.(type) {
	case string:
		return repliesLink{url: v}, nil
	case []any:
		return repliesBareArray{items: v}, nil
	case map[string]any:
		switch first := v["first"].(type) {
		case map[string]any:
			return repliesInlinePage{page: first}, nil
		case string:
			return repliesFirstLink{url: first}, nil
		}
		if hasItems(v) {
			return repliesInlineItems{collection: v}, nil
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedReplies, value)
}

// collectReplies resolves a classified replies value to reply ids.
func collectReplies(ctx context.Context, env *protocol.Env, nodeID string, shape repliesShape) ([]string, error) {
	switch s := shape.(type) {
	case repliesLink:
		collection, err := protocol.FindOrFetchJSON(ctx, env, s.url, env.UpdateTime, fetch.ActivityPubMediaType)
		if err != nil {
			return nil, err
		}
		if collectionType := stringField(collection, "type"); collectionType != typeOrderedCollection {
			return nil, fmt.Errorf("%w, found %q at %s", ErrUnexpectedCollectionType, collectionType, s.url)
		}
		switch first := collection["first"].(type) {
		case string:
			return paginate(ctx, env, nodeID, nil, first)
		case map[string]any:
			return paginate(ctx, env, nodeID, first, "")
		default:
			return normalizeItems(env, nodeID, s.url, pageItems(collection))
		}
	case repliesInlinePage:
		return paginate(ctx, env, nodeID, s.page, "")
	case repliesFirstLink:
		return paginate(ctx, env, nodeID, nil, s.url)
	case repliesBareArray:
		if len(s.items) > 0 {
			return nil, fmt.Errorf("%w: %d items", ErrUnexpectedRepliesArray, len(s.items))
		}
		return []string{}, nil
	case repliesInlineItems:
		return normalizeItems(env, nodeID, nodeID, pageItems(s.collection))
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedReplies, shape)
	}
}

// paginate collects items starting from an inline page or a page url and
// following next links. A next link to an already visited page ends the
// chain.
func paginate(ctx context.Context, env *protocol.Env, nodeID string, page map[string]any, pageURL string) ([]string, error) {
	visited := make(map[string]struct{})
	replies := []string{}
	for {
		if page == nil {
			if pageURL == "" {
				return replies, nil
			}
			if _, seen := visited[pageURL]; seen {
				return replies, nil
			}
			visited[pageURL] = struct{}{}
			fetched, err := protocol.FindOrFetchJSON(ctx, env, pageURL, env.UpdateTime, fetch.ActivityPubMediaType)
			if err != nil {
				return nil, err
			}
			page = fetched
		}
		if id := stringField(page, "id"); id != "" {
			visited[id] = struct{}{}
			if pageURL == "" {
				pageURL = id
			}
		}

		ids, err := normalizeItems(env, nodeID, pageURL, pageItems(page))
		if err != nil {
			return nil, err
		}
		replies = append(replies, ids...)

		pageURL = linkField(page["next"])
		page = nil
	}
}

// pageItems returns a page's items, plus orderedItems for ordered or
// untyped pages.
func pageItems(page map[string]any) []any {
	var items []any
	if arr, ok := page["items"].([]any); ok {
		items = append(items, arr...)
	}
	switch stringField(page, "type") {
	case typeOrderedCollectionPage, typeOrderedCollection, "":
		if arr, ok := page["orderedItems"].([]any); ok {
			items = append(items, arr...)
		}
	}
	return items
}

// hasItems reports whether pageItems would read an items array from obj.
func hasItems(obj map[string]any) bool {
	if _, ok := obj["items"].([]any); ok {
		return true
	}
	switch stringField(obj, "type") {
	case typeOrderedCollectionPage, typeOrderedCollection, "":
		_, ok := obj["orderedItems"].([]any)
		return ok
	}
	return false
}

// linkField returns a link given as a string or as an object with an id.
func linkField(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]any:
		return stringField(v, "id")
	}
	return ""
}

// normalizeItems turns reply items into ids.
func normalizeItems(env *protocol.Env, nodeID, pageURL string, items []any) ([]string, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		id, err := normalizeItem(env, nodeID, pageURL, item)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// normalizeItem accepts an id string, an object with an id, or a JSON
// encoded object string produced by buggy servers.
func normalizeItem(env *protocol.Env, nodeID, pageURL string, item any) (string, error) {
	switch v := item.(type) {
	case string:
		if !strings.HasPrefix(v, "{") {
			return v, nil
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidReplyItem, err)
		}
		id := stringField(obj, "id")
		if id == "" {
			return "", fmt.Errorf("%w: double-encoded item without id", ErrInvalidReplyItem)
		}
		env.Warn(nodeID, pageURL, "Found a double-encoded reply item", v)
		return id, nil
	case map[string]any:
		if id := stringField(v, "id"); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %v", ErrInvalidReplyItem, item)
}

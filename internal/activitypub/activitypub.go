package activitypub

import (
	"context"
	"fmt"
	"slices"

	"github.com/nao1215/threadcap/internal/fetch"
	"github.com/nao1215/threadcap/internal/model"
	"github.com/nao1215/threadcap/internal/protocol"
)

// Object types.
const (
	typeNote                  = "Note"
	typeArticle               = "Article"
	typePage                  = "Page"
	typeVideo                 = "Video"
	typeQuestion              = "Question"
	typePodcastEpisode        = "PodcastEpisode"
	typeCreate                = "Create"
	typePerson                = "Person"
	typeOrderedCollection     = "OrderedCollection"
	typeOrderedCollectionPage = "OrderedCollectionPage"
)

// rootTypes are the object types accepted by Init.
var rootTypes = []string{typeNote, typeArticle, typePage, typeVideo, typeQuestion, typePodcastEpisode}

// stateFirstObjectType records the type of the first object fetched in a
// run. Podcast episodes expose their reply collection as "comments".
const stateFirstObjectType = "activitypub.firstObjectType"

// Implementation is the ActivityPub protocol.
type Implementation struct{}

var _ protocol.Implementation = (*Implementation)(nil)

// New returns the ActivityPub implementation.
func New() *Implementation {
	return &Implementation{}
}

// Init implements protocol.Implementation. The root is always fetched live.
func (i *Implementation) Init(ctx context.Context, env *protocol.Env, url string) (*model.Threadcap, error) {
	obj, err := protocol.FindOrFetchJSON(ctx, env, url, env.Current(), fetch.ActivityPubMediaType)
	if err != nil {
		return nil, err
	}
	objType := stringField(obj, "type")
	if !slices.Contains(rootTypes, objType) {
		return nil, fmt.Errorf("%w: %q at %s", ErrInvalidRootType, objType, url)
	}
	id := stringField(obj, "id")
	if id == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingID, url)
	}
	return model.NewThreadcap(model.ProtocolActivityPub, id), nil
}

// FetchComment implements protocol.Implementation.
func (i *Implementation) FetchComment(ctx context.Context, env *protocol.Env, id string) (*model.Comment, error) {
	obj, err := fetchObject(ctx, env, id)
	if err != nil {
		return nil, err
	}
	if stringField(obj, "type") == typeCreate {
		env.Warn(id, id, "Unwrapping a Create activity where an object was expected", obj)
	}
	obj, err = unwrapCreate(ctx, env, obj)
	if err != nil {
		return nil, err
	}
	return computeComment(obj, id)
}

// FetchCommenter implements protocol.Implementation.
func (i *Implementation) FetchCommenter(ctx context.Context, env *protocol.Env, attributedTo string) (*model.Commenter, error) {
	obj, err := fetchObject(ctx, env, attributedTo)
	if err != nil {
		return nil, err
	}
	return computeCommenter(obj, attributedTo, env.UpdateTime)
}

// FetchReplies implements protocol.Implementation.
func (i *Implementation) FetchReplies(ctx context.Context, env *protocol.Env, id string) ([]string, error) {
	obj, err := fetchObject(ctx, env, id)
	if err != nil {
		return nil, err
	}
	obj, err = unwrapCreate(ctx, env, obj)
	if err != nil {
		return nil, err
	}

	field := "replies"
	if env.State.String(stateFirstObjectType) == typePodcastEpisode {
		field = "comments"
	}
	value, ok := obj[field]
	if !ok || value == nil {
		env.Warn(id, id, fmt.Sprintf("No '%s' found on object", field), obj)
		return []string{}, nil
	}

	shape, err := classifyReplies(value)
	if err != nil {
		return nil, fmt.Errorf("%s of %s: %w", field, id, err)
	}
	return collectReplies(ctx, env, id, shape)
}

// fetchObject fetches an ActivityPub object with the pass's freshness bound
// and records the first object type seen in the run.
func fetchObject(ctx context.Context, env *protocol.Env, id string) (map[string]any, error) {
	obj, err := protocol.FindOrFetchJSON(ctx, env, id, env.UpdateTime, fetch.ActivityPubMediaType)
	if err != nil {
		return nil, err
	}
	if objType := stringField(obj, "type"); objType != "" {
		env.State.SetIfAbsent(stateFirstObjectType, objType)
	}
	return obj, nil
}

// unwrapCreate returns the object of a Create activity, or obj itself.
// A Create whose object is a link is followed.
func unwrapCreate(ctx context.Context, env *protocol.Env, obj map[string]any) (map[string]any, error) {
	if stringField(obj, "type") != typeCreate {
		return obj, nil
	}
	switch inner := obj["object"].(type) {
	case map[string]any:
		return inner, nil
	case string:
		return protocol.FindOrFetchJSON(ctx, env, inner, env.UpdateTime, fetch.ActivityPubMediaType)
	default:
		return nil, fmt.Errorf("%w: Create activity without object", ErrMissingID)
	}
}

// stringField returns obj[key] if it is a string.
func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

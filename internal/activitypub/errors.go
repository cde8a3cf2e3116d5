package activitypub

import "errors"

var (
	// ErrInvalidRootType is returned by Init for objects that cannot root a thread.
	ErrInvalidRootType = errors.New("unsupported root object type")

	// ErrMissingID is returned when an object has no string id.
	ErrMissingID = errors.New("object has no id")

	// ErrMissingAttributedTo is returned when a comment has no usable author.
	ErrMissingAttributedTo = errors.New("unable to find attributedTo")

	// ErrMissingContent is returned when a comment has neither contentMap nor content.
	ErrMissingContent = errors.New("no content found")

	// ErrMissingPublished is returned when a comment has no published string.
	ErrMissingPublished = errors.New("published is required")

	// ErrUnsupportedAttachment is returned for attachments of an unknown type
	// or without a media type or url.
	ErrUnsupportedAttachment = errors.New("unsupported attachment")

	// ErrMissingName is returned when an actor has neither name nor preferredUsername.
	ErrMissingName = errors.New("actor has no name")

	// ErrUnsupportedIcon is returned when an actor icon has no url.
	ErrUnsupportedIcon = errors.New("unsupported icon")

	// ErrUnexpectedCollectionType is returned when a replies link does not
	// resolve to an OrderedCollection.
	ErrUnexpectedCollectionType = errors.New("expected replies to be an OrderedCollection")

	// ErrUnexpectedRepliesArray is returned for a non-empty bare replies array.
	ErrUnexpectedRepliesArray = errors.New("unexpected non-empty replies array")

	// ErrUnsupportedReplies is returned when the replies value has no known shape.
	ErrUnsupportedReplies = errors.New("unsupported replies value")

	// ErrInvalidReplyItem is returned when a reply item has no id.
	ErrInvalidReplyItem = errors.New("unsupported reply item")
)

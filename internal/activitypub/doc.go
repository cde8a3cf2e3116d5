// Package activitypub implements the ActivityPub protocol for threadcap.
//
// Real servers disagree on almost every detail of how a note, its author and
// its reply collection are represented. This package reads the untyped JSON
// of remote objects and normalizes it into the snapshot model, accepting the
// shapes produced by Mastodon, Pleroma, Misskey, PeerTube, Castopod and
// others.
//
// # Reply collections
//
// The shape of an object's reply collection is classified once into one of
// a closed set of variants (a link to a collection, an inline first page, a
// link to a first page, a bare array, inline items) and each variant is
// handled by its own case. Pages are then followed through their next links
// with a visited set, because some servers end a chain by repeating the
// last page.
//
// # Warnings
//
// Conditions that are tolerated rather than failed are reported as warning
// events: a Create activity where a note was expected, a double-encoded
// reply item, and an object with no reply collection at all.
package activitypub

// Package services connects bcx to the mail provider and to Bandcamp.
//
// # Mailbox
//
// [Mailbox] is the narrow view of an IMAP account used by the collector. [IMAPMailbox]
// implements it with go-imap v2 over implicit TLS, STARTTLS or plain TCP, authenticating
// with LOGIN or SASL OAUTHBEARER. OAuth access tokens come from an [oauth2.TokenSource] built
// from a refresh token stored in the keyring (see [RefreshTokenSource]).
//
// Fetch runs a UID SEARCH on the server (unseen only, unless [Filter.IncludeRead]), downloads
// envelopes, filters them by sender and subject, then downloads full bodies with BODY.PEEK so
// messages stay unread until [Mailbox.MarkSeen] is called. [Mailbox.Delete] flags messages
// \Deleted and expunges them, with UID EXPUNGE when the server supports UIDPLUS.
//
// # Bandcamp
//
// [ExtractBandcampLink] pulls the album or track URL out of a notification body.
// [BandcampClient.Resolve] downloads that page and [ExtractEmbed] builds the player iframe
// from whichever id source the page offers.
//
// # Error Handling
//
// Errors wrap sentinels from the shared package:
//   - [shared.ErrMailSource] : connection, selection or fetch failures
//   - [shared.ErrAuthFailed] : rejected login or token refresh
//   - [shared.ErrNotFound] : Bandcamp page 404
//   - [shared.ErrNoEmbed] : page fetched but no id found
//   - [shared.ErrHTTP] : other non-OK responses ([StatusError])
package services

// Package youtube talks to the YouTube Data API v3 and understands the
// platform's video identifiers.
//
// Only videos.list is used. Responses are mapped onto a flat Video value and
// HTTP failures onto the shared services error kinds: 403 becomes
// AccessDenied so callers can switch to an extractor that needs no API quota.
package youtube

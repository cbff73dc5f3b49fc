// Package logging builds the slog loggers used by every vidingest component.
//
// Console output is a single human-readable line per record with the
// component, video and stage lifted into a header; when a log directory is
// configured each record is mirrored as JSON into vidingest.log. Context
// helpers attach queue item, video, stage and correlation identifiers.
package logging

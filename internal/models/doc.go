// Package models chooses a transcription model tier from a video's duration
// and makes sure the tier's weights are present on disk.
//
// Selection is a pure function of duration and configuration. Fetching a
// missing tier is gated by the storage admission check and written
// atomically into the model directory.
package models

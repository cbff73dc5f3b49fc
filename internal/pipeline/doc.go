// Package pipeline runs one video through metadata resolution, model
// selection, and audio extraction.
//
// Stages run strictly in order. Each run gets a correlation id stamped on its
// context for log correlation, and owns a progress forwarding goroutine that
// is always joined before Run returns.
package pipeline

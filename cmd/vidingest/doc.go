// Command vidingest turns video references and uploaded files into
// transcription-ready audio.
//
// One-shot commands (ingest, extract, metadata, probe, select-model) run a
// single pipeline step in the foreground. "vidingest serve" runs the queue
// daemon; the queue subcommands inspect and manage its SQLite store directly,
// so they work whether or not the daemon is running.
package main

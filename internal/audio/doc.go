// Package audio produces transcription-ready audio: mono, 16 kHz, 16-bit PCM
// WAV.
//
// Downloads go through acquisition and are transcoded with ffmpeg using fixed
// parameters. A non-zero ffmpeg exit is a hard failure carrying the captured
// stderr; it is never retried. When the platform refuses the download, a
// single direct audio extraction through yt-dlp replaces it.
package audio

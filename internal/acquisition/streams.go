package acquisition

import (
	"strings"

	"vidingest/internal/services/ytdlp"
)

var compatibleContainers = map[string]bool{
	"m4a":  true,
	"webm": true,
	"mp4":  true,
	"mp3":  true,
	"ogg":  true,
	"opus": true,
}

// SelectBestAudio picks the highest-bitrate audio-only format in a
// compatible container. Mixed audio/video formats are considered only when no
// audio-only format qualifies. Ties go to the format with a known size.
func SelectBestAudio(formats []ytdlp.Format) (AudioStreamDescriptor, bool) {
	var best *ytdlp.Format
	pick := func(audioOnly bool) {
		for i := range formats {
			f := &formats[i]
			if !compatibleContainers[strings.ToLower(f.Ext)] {
				continue
			}
			if f.ACodec == "" || f.ACodec == "none" {
				continue
			}
			if audioOnly != f.AudioOnly() {
				continue
			}
			if best == nil || better(f, best) {
				best = f
			}
		}
	}
	pick(true)
	if best == nil {
		pick(false)
	}
	if best == nil {
		return AudioStreamDescriptor{}, false
	}
	return AudioStreamDescriptor{
		FormatID:  best.FormatID,
		Container: strings.ToLower(best.Ext),
		Bitrate:   bitrate(best),
		Size:      best.Size(),
		Codec:     best.ACodec,
		URL:       best.URL,
	}, true
}

func better(candidate, current *ytdlp.Format) bool {
	cb, bb := bitrate(candidate), bitrate(current)
	if cb != bb {
		return cb > bb
	}
	return candidate.Size() > 0 && current.Size() == 0
}

func bitrate(f *ytdlp.Format) float64 {
	if f.ABR > 0 {
		return f.ABR
	}
	return f.TBR
}

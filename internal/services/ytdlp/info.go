package ytdlp

// Thumbnail is one entry of the thumbnails array.
type Thumbnail struct {
	URL        string `json:"url"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Preference int    `json:"preference"`
}

// Format is one entry of the formats array.
type Format struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	URL            string   `json:"url"`
	Protocol       string   `json:"protocol"`
	ACodec         string   `json:"acodec"`
	VCodec         string   `json:"vcodec"`
	ABR            float64  `json:"abr"`
	TBR            float64  `json:"tbr"`
	Filesize       *int64   `json:"filesize"`
	FilesizeApprox *int64   `json:"filesize_approx"`
	ASR            *float64 `json:"asr"`
}

// AudioOnly reports a format carrying audio and no video.
func (f Format) AudioOnly() bool {
	return f.ACodec != "" && f.ACodec != "none" && (f.VCodec == "" || f.VCodec == "none")
}

// Size returns the exact or approximate byte size, or 0 when unknown.
func (f Format) Size() int64 {
	if f.Filesize != nil && *f.Filesize > 0 {
		return *f.Filesize
	}
	if f.FilesizeApprox != nil && *f.FilesizeApprox > 0 {
		return *f.FilesizeApprox
	}
	return 0
}

// Info is the subset of --dump-single-json output used for ingestion.
type Info struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Duration       float64     `json:"duration"`
	ViewCount      *int64      `json:"view_count"`
	LikeCount      *int64      `json:"like_count"`
	UploadDate     string      `json:"upload_date"`
	Timestamp      *int64      `json:"timestamp"`
	ChannelID      string      `json:"channel_id"`
	Channel        string      `json:"channel"`
	Uploader       string      `json:"uploader"`
	Thumbnail      string      `json:"thumbnail"`
	Thumbnails     []Thumbnail `json:"thumbnails"`
	Tags           []string    `json:"tags"`
	Categories     []string    `json:"categories"`
	Availability   string      `json:"availability"`
	AgeLimit       int         `json:"age_limit"`
	LiveStatus     string      `json:"live_status"`
	Formats        []Format    `json:"formats"`
	Filesize       *int64      `json:"filesize"`
	FilesizeApprox *int64      `json:"filesize_approx"`
}

// ChannelTitle prefers the channel name and falls back to the uploader.
func (i *Info) ChannelTitle() string {
	if i.Channel != "" {
		return i.Channel
	}
	return i.Uploader
}

package main

import (
	"fmt"
	"strconv"
	"time"

	"vidingest/internal/queue"
)

type queueItemView struct {
	ID            int64   `json:"id"`
	Source        string  `json:"source"`
	Title         string  `json:"title,omitempty"`
	Status        string  `json:"status"`
	Stage         string  `json:"stage,omitempty"`
	Percent       float64 `json:"percent"`
	Message       string  `json:"message,omitempty"`
	ModelTier     string  `json:"model_tier,omitempty"`
	AudioPath     string  `json:"audio_path,omitempty"`
	ErrorKind     string  `json:"error_kind,omitempty"`
	Error         string  `json:"error,omitempty"`
	ReviewReason  string  `json:"review_reason,omitempty"`
	CorrelationID string  `json:"correlation_id,omitempty"`
	Priority      int     `json:"priority"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

func itemView(item *queue.Item) queueItemView {
	return queueItemView{
		ID:            item.ID,
		Source:        item.Source(),
		Title:         item.Title,
		Status:        string(item.Status),
		Stage:         item.ProgressStage,
		Percent:       item.ProgressPercent,
		Message:       item.ProgressMessage,
		ModelTier:     item.ModelTier,
		AudioPath:     item.AudioPath,
		ErrorKind:     item.ErrorKind,
		Error:         item.ErrorMessage,
		ReviewReason:  item.ReviewReason,
		CorrelationID: item.CorrelationID,
		Priority:      item.Priority,
		CreatedAt:     item.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     item.UpdatedAt.Format(time.RFC3339),
	}
}

func buildQueueListRows(items []*queue.Item) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		title := item.Title
		if title == "" {
			title = "-"
		}
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.Source(),
			title,
			string(item.Status),
			fmt.Sprintf("%.0f%%", item.ProgressPercent),
			item.CreatedAt.Format(time.RFC3339),
		})
	}
	return rows
}

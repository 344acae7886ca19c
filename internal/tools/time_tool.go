package tools

import (
	"context"
	"fmt"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// NewTimeTool creates the get_current_time tool
func NewTimeTool() *Tool {
	return &Tool{
		Name:        "get_current_time",
		DisplayName: "Get Current Time",
		Description: "Returns the current server date and time. Use this when the user asks 'What time is it?' or 'What is today's date?'.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"timezone": map[string]interface{}{
					"type":        "string",
					"description": "Optional timezone name (e.g., 'America/New_York', 'Asia/Tokyo', 'UTC'). Defaults to server time.",
				},
			},
			"required": []string{},
		},
		Execute:  executeGetCurrentTime,
		Category: "time",
		Keywords: []string{"time", "date", "clock", "now", "today", "timezone"},
	}
}

func executeGetCurrentTime(_ context.Context, args map[string]interface{}) (string, error) {
	now := time.Now()

	if tz, ok := args["timezone"].(string); ok && tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("invalid timezone '%s', use format like 'America/New_York' or 'UTC'", tz)
		}
		now = now.In(loc)
	}

	return now.Format(timeLayout), nil
}

package table

import (
	"fmt"
	"time"
)

const (
	// BlockHours is the width of one time-of-day block.
	BlockHours = 3
	// BlockCount is the number of blocks in a day.
	BlockCount = 24 / BlockHours
	// WeekdayCount is the number of heatmap rows.
	WeekdayCount = 7
)

// WeekdayNames lists weekdays starting on Monday.
var WeekdayNames = [WeekdayCount]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// BlockLabels lists the block labels, 00-03 through 21-00.
var BlockLabels = func() [BlockCount]string {
	var labels [BlockCount]string
	for i := range labels {
		labels[i] = fmt.Sprintf("%02d-%02d", BlockHours*i, (BlockHours*(i+1))%24)
	}
	return labels
}()

// WeekdayIndex maps a weekday to its row, Monday being 0.
func WeekdayIndex(day time.Weekday) int {
	return (int(day) + 6) % WeekdayCount
}

// BlockIndex maps an hour of day to its block.
func BlockIndex(hour int) int {
	return hour / BlockHours
}

package schedule

import (
	"fmt"
	"time"
)

// Hourly returns a standard cron expression firing every hour at minute.
func Hourly(minute int) string {
	return fmt.Sprintf("%d * * * *", minute)
}

// Daily returns a standard cron expression firing every day at hour:minute.
func Daily(hour, minute int) string {
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

// Weekly returns a standard cron expression firing every week on day at hour:minute.
func Weekly(day time.Weekday, hour, minute int) string {
	return fmt.Sprintf("%d %d * * %d", minute, hour, int(day))
}

// Monthly returns a standard cron expression firing on day of every month at hour:minute.
func Monthly(day, hour, minute int) string {
	return fmt.Sprintf("%d %d %d * *", minute, hour, day)
}
